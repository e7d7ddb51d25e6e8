package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amp-labs/restyle/cli"
	"github.com/amp-labs/restyle/config"
	"github.com/amp-labs/restyle/dataurl"
	"github.com/amp-labs/restyle/executor"
	"github.com/amp-labs/restyle/fetch"
	"github.com/amp-labs/restyle/generation"
	"github.com/amp-labs/restyle/history"
	"github.com/amp-labs/restyle/logger"
	"github.com/amp-labs/restyle/retry"
	"github.com/amp-labs/restyle/sanitize"
	"github.com/amp-labs/restyle/should"
	"github.com/amp-labs/restyle/shutdown"
	"github.com/spf13/cobra"
)

var (
	errEmptyPrompt = errors.New("prompt can't be empty")
	errNoImage     = errors.New("an image is required (--image)")
)

type generateFlags struct {
	image         string
	prompt        string
	style         string
	endpoint      string
	maxRetries    int
	retryDelay    time.Duration
	retryDelayMax time.Duration
	out           string
	noHistory     bool
}

func newGenerateCmd(a *app) *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Restyle an image",
		Long: "Send an image, a prompt and a style to the generate endpoint. Overloaded " +
			"attempts are retried with exponential backoff; Ctrl-C aborts quietly.",
		Example: "  restyle generate --image photo.jpg --prompt \"golden hour\" --style Vintage --out ./out",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.generate(cmd, flags)
		},
	}

	names := make([]string, 0, len(generation.Styles()))
	for _, s := range generation.Styles() {
		names = append(names, string(s))
	}

	cmd.Flags().StringVarP(&flags.image, "image", "i", "", "PNG or JPEG file to restyle")
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "What to do with the image")
	cmd.Flags().StringVarP(&flags.style, "style", "s", "",
		"One of "+strings.Join(names, ", ")+" (asked for on a terminal, otherwise "+
			string(generation.StyleEditorial)+")")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "Base URL of the generate endpoint (default RESTYLE_ENDPOINT)")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", executor.DefaultMaxRetries,
		"Total attempts, including the first")
	cmd.Flags().DurationVar(&flags.retryDelay, "retry-delay", executor.DefaultRetryDelayBase,
		"Delay before the first retry; doubles on each further retry")
	cmd.Flags().DurationVar(&flags.retryDelayMax, "retry-delay-max", 0, "Upper bound for retry delays (0 for none)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Directory to write the generated image to")
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "Do not record the result in the history")

	return cmd
}

// clientConfig applies the flags that were set on top of the configured
// client settings.
func (f *generateFlags) clientConfig(cmd *cobra.Command, base config.Client) config.Client {
	changed := cmd.Flags().Changed

	if changed("endpoint") {
		base.Endpoint = f.endpoint
	}

	if changed("max-retries") {
		base.MaxRetries = f.maxRetries
	}

	if changed("retry-delay") {
		base.RetryDelayBase = f.retryDelay
	}

	if changed("retry-delay-max") {
		base.RetryDelayMax = f.retryDelayMax
	}

	return base
}

func (a *app) generate(cmd *cobra.Command, flags *generateFlags) error {
	ctx := logger.WithSubsystem(cmd.Context(), "generate")

	req, err := a.buildRequest(flags)
	if err != nil {
		return err
	}

	clientCfg := flags.clientConfig(cmd, a.cfg.Client)

	base, err := url.Parse(clientCfg.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", clientCfg.Endpoint, err)
	}

	client := fetch.NewClient(ctx, fetch.WithBaseURL(base))

	exec := executor.New[generation.Response](rejectingClientErrors(fetch.NewJSONCaller[generation.Response](client)),
		executor.WithName("generate"),
		executor.WithDefaults(
			executor.WithMethod(http.MethodPost),
			executor.WithMaxRetries(clientCfg.MaxRetries),
			executor.WithRetryDelayBase(clientCfg.RetryDelayBase),
			executor.WithRetryDelayMax(clientCfg.RetryDelayMax),
			executor.WithJitter(retry.Jitter(clientCfg.Jitter)),
		))

	// Ctrl-C aborts the request rather than failing it.
	defer shutdown.BeforeShutdown(exec.Abort)()

	states, _ := exec.Subscribe()
	progressDone := make(chan struct{})

	go func() {
		defer close(progressDone)

		for state := range states {
			a.showProgress(state, max(clientCfg.MaxRetries, 1))
		}
	}()

	result := exec.Execute(ctx, generation.Path, executor.WithBody(req))

	// Close delivers the queued snapshots and then ends the subscription.
	_ = exec.Close()
	<-progressDone

	a.out.ClearStatus()

	switch {
	case result.Aborted():
		logger.Get(ctx).Debug("generation aborted", "cause", result.Err)

		return nil
	case result.Failed():
		return failureError(result, clientCfg.Endpoint)
	}

	return a.finish(context.WithoutCancel(ctx), flags, result.Data)
}

func (a *app) buildRequest(flags *generateFlags) (generation.Request, error) {
	if flags.image == "" {
		return generation.Request{}, errNoImage
	}

	image, err := dataurl.FromFile(flags.image, generation.MaxFileMB)
	if err != nil {
		return generation.Request{}, err
	}

	prompt := sanitize.Prompt(flags.prompt)
	if prompt == "" && a.out.Interactive() {
		answer, err := cli.PromptString("Prompt")
		if err != nil {
			return generation.Request{}, err
		}

		prompt = sanitize.Prompt(answer)
	}

	if prompt == "" {
		return generation.Request{}, errEmptyPrompt
	}

	style, err := a.resolveStyle(flags.style)
	if err != nil {
		return generation.Request{}, err
	}

	return generation.Request{ImageDataURL: image, Prompt: prompt, Style: style}, nil
}

func (a *app) resolveStyle(name string) (generation.Style, error) {
	if name != "" {
		return generation.ParseStyle(name)
	}

	if !a.out.Interactive() {
		return generation.StyleEditorial, nil
	}

	choices := make([]string, 0, len(generation.Styles()))
	for _, s := range generation.Styles() {
		choices = append(choices, string(s))
	}

	picked, err := cli.Select("Style", choices...)
	if err != nil {
		return "", err
	}

	return generation.ParseStyle(picked)
}

// rejectingClientErrors stops retrying on 4xx replies other than timeouts
// and rate limits; sending the same request again cannot fix them.
func rejectingClientErrors(caller executor.Caller[generation.Response]) executor.Caller[generation.Response] { //nolint:ireturn
	return executor.CallerFunc[generation.Response](
		func(ctx context.Context, req fetch.Request) (generation.Response, error) {
			rsp, err := caller.Call(ctx, req)
			if err == nil {
				return rsp, nil
			}

			var status *fetch.StatusError
			if errors.As(err, &status) && status.StatusCode >= 400 && status.StatusCode < 500 &&
				status.StatusCode != http.StatusRequestTimeout && status.StatusCode != http.StatusTooManyRequests {
				return rsp, retry.Abort(err)
			}

			return rsp, err
		})
}

func (a *app) showProgress(state executor.State[generation.Response], attempts int) {
	switch state.Status {
	case executor.StatusLoading:
		if state.RetryCount == 0 {
			a.out.Status("Generating...")
		} else {
			a.out.Status(fmt.Sprintf("Generating... (attempt %d of %d)", state.RetryCount+1, attempts))
		}
	case executor.StatusRetrying:
		reason := "Request failed"
		if state.Error != nil && state.Error.Kind == executor.KindTransientServer {
			reason = generation.OverloadedMessage
		}

		a.out.Warn(fmt.Sprintf("%s, retrying (attempt %d of %d failed)...", reason, state.RetryCount, attempts))
	case executor.StatusIdle, executor.StatusSucceeded, executor.StatusAborted, executor.StatusFailed:
	}
}

// failureError turns a failed result into a message that says what to do
// about it.
func failureError(result executor.Result[generation.Response], endpoint string) error {
	info, ok := result.ErrorInfo()
	if !ok {
		return result.Err
	}

	last := info.Last
	if info.Kind != executor.KindExhaustedRetries {
		last = info.Kind
	}

	switch last {
	case executor.KindTransientServer:
		return fmt.Errorf("the model stayed overloaded for %d attempts; try again later or raise --max-retries: %w",
			info.Attempts, info)
	case executor.KindTransientTransport:
		if fetch.StatusCode(info.Err) != 0 {
			return fmt.Errorf("the endpoint kept failing after %d attempts: %w", info.Attempts, info)
		}

		return fmt.Errorf("could not reach %s (is `restyle serve` running?): %w", endpoint, info)
	case executor.KindPermanent:
		return fmt.Errorf("the endpoint rejected the request: %w", info.Err)
	case executor.KindUnknown, executor.KindCancelled, executor.KindExhaustedRetries:
	}

	return info
}

type generated struct {
	generation.Response

	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	SizeMB float64 `json:"sizeMb,omitempty"`
	File   string  `json:"file,omitempty"`
}

func (a *app) finish(ctx context.Context, flags *generateFlags, rsp generation.Response) error {
	out := generated{Response: rsp}

	if details, err := history.Details(rsp); err == nil {
		out.Width, out.Height, out.SizeMB = details.Width, details.Height, details.SizeMB
	} else {
		logger.Get(ctx).Warn("error inspecting generated image", "error", err)
	}

	if !flags.noHistory {
		if err := a.remember(ctx, rsp); err != nil {
			return err
		}
	}

	if flags.out != "" {
		name := strings.TrimSuffix(filepath.Base(flags.image), filepath.Ext(flags.image)) +
			"-" + strings.ToLower(string(rsp.Style))

		path, err := dataurl.WriteFile(flags.out, name, rsp.DataURL)
		if err != nil {
			return fmt.Errorf("error writing image: %w", err)
		}

		out.File = path
	}

	return a.out.Print(
		[]string{"ID", "STYLE", "PROMPT", "SIZE", "FILE"},
		[][]string{{
			rsp.ID,
			string(rsp.Style),
			rsp.Prompt,
			dimensions(out.Width, out.Height, out.SizeMB),
			out.File,
		}},
		out,
	)
}

func (a *app) remember(ctx context.Context, rsp generation.Response) error {
	store, err := a.openHistory(ctx)
	if err != nil {
		return err
	}

	defer should.Close(ctx, store, "error closing history")

	if err := store.Append(ctx, rsp); err != nil {
		return fmt.Errorf("error saving to history: %w", err)
	}

	return nil
}

func dimensions(width, height int, sizeMB float64) string {
	if width == 0 && height == 0 {
		return strconv.FormatFloat(sizeMB, 'f', 2, 64) + " MB"
	}

	return fmt.Sprintf("%dx%d, %.2f MB", width, height, sizeMB)
}
