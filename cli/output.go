// Package cli holds the terminal helpers of the restyle command: tables or
// JSON on stdout, a rewritable status line, and interactive prompts.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Output writes command results to w and messages to errW.
type Output struct {
	mut         sync.Mutex
	jsonMode    bool
	interactive bool
	w           io.Writer
	errW        io.Writer
	status      bool

	warn    *color.Color
	failure *color.Color
	success *color.Color
	muted   *color.Color
}

// NewOutput writes to the process stdout and stderr. Colors and the status
// line are only used when stdout is a terminal.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode, IsTerminal(os.Stdout))
}

// NewOutputTo is NewOutput with explicit writers.
func NewOutputTo(w, errW io.Writer, jsonMode, interactive bool) *Output {
	out := &Output{
		jsonMode:    jsonMode,
		interactive: interactive && !jsonMode,
		w:           w,
		errW:        errW,
		warn:        color.New(color.FgYellow),
		failure:     color.New(color.FgRed, color.Bold),
		success:     color.New(color.FgGreen),
		muted:       color.New(color.Faint),
	}

	for _, c := range []*color.Color{out.warn, out.failure, out.success, out.muted} {
		if !out.interactive {
			c.DisableColor()
		}
	}

	return out
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Interactive reports whether prompts and the status line can be used.
func (o *Output) Interactive() bool {
	return o.interactive
}

// JSONMode reports whether results are printed as JSON.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print writes rows as a table, or data as JSON in JSON mode.
func (o *Output) Print(headers []string, rows [][]string, data any) error {
	if o.jsonMode {
		return o.JSON(data)
	}

	return o.Table(headers, rows)
}

func (o *Output) Table(headers []string, rows [][]string) error {
	o.mut.Lock()
	defer o.mut.Unlock()

	o.clearLocked()

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0) //nolint:mnd

	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}

	_, _ = fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

func (o *Output) JSON(v any) error {
	o.mut.Lock()
	defer o.mut.Unlock()

	o.clearLocked()

	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// Status replaces the status line. Without a terminal every update is
// written to errW as its own line.
func (o *Output) Status(msg string) {
	o.mut.Lock()
	defer o.mut.Unlock()

	if !o.interactive {
		_, _ = fmt.Fprintln(o.errW, msg)

		return
	}

	_, _ = fmt.Fprint(o.w, "\r\033[K"+o.muted.Sprint(msg))
	o.status = true
}

// Warn is Status in the warning color.
func (o *Output) Warn(msg string) {
	o.Status(o.warn.Sprint(msg))
}

// ClearStatus erases the status line, if one is shown.
func (o *Output) ClearStatus() {
	o.mut.Lock()
	defer o.mut.Unlock()

	o.clearLocked()
}

func (o *Output) clearLocked() {
	if o.status {
		_, _ = fmt.Fprint(o.w, "\r\033[K")
		o.status = false
	}
}

// Success prints msg to errW.
func (o *Output) Success(msg string) {
	o.message(o.success.Sprint(msg))
}

// Error prints msg to errW.
func (o *Output) Error(msg string) {
	o.message(o.failure.Sprint("Error: ") + msg)
}

func (o *Output) message(msg string) {
	o.mut.Lock()
	defer o.mut.Unlock()

	o.clearLocked()

	_, _ = fmt.Fprintln(o.errW, msg)
}
