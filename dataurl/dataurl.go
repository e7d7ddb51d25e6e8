// Package dataurl converts images to and from RFC 2397 data URLs, the form
// in which images travel in generate requests and history entries.
package dataurl

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for Inspect
	_ "image/jpeg" // register decoder for Inspect
	_ "image/png"  // register decoder for Inspect
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/amp-labs/restyle/sanitize"
)

const (
	scheme = "data:"

	bytesPerMB = 1024 * 1024
)

var (
	ErrMalformed  = errors.New("malformed data URL")
	ErrNotAnImage = errors.New("file is not an image")
	ErrTooLarge   = errors.New("file too large")
	ErrEmptyName  = errors.New("file name is empty")
	ErrUnreadable = errors.New("image dimensions could not be read")
)

// Details describes an image held in a data URL.
type Details struct {
	MimeType string  `json:"mimeType"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	SizeMB   float64 `json:"sizeMb"`
}

// Encode returns data as a base64 data URL of the given media type.
func Encode(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return scheme + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode splits a data URL into its media type and payload. Both base64
// and percent-encoded payloads are accepted; a missing media type defaults
// to text/plain as RFC 2397 prescribes.
func Decode(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), scheme)
	if !ok {
		return "", nil, fmt.Errorf("%w: missing %q prefix", ErrMalformed, scheme)
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing ','", ErrMalformed)
	}

	header, isBase64 := strings.CutSuffix(header, ";base64")

	mimeType := "text/plain;charset=US-ASCII"

	if header != "" {
		mediaType, params, err := mime.ParseMediaType(header)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		mimeType = mime.FormatMediaType(mediaType, params)
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		return mimeType, data, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return mimeType, []byte(text), nil
}

// FromFile reads an image file and returns it as a data URL. Files larger
// than maxMB megabytes, or whose content is not an image, are rejected.
func FromFile(path string, maxMB int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if maxMB > 0 && info.Size() > int64(maxMB)*bytesPerMB {
		return "", fmt.Errorf("%w: %s is %.2f MB, the limit is %d MB",
			ErrTooLarge, filepath.Base(path), float64(info.Size())/bytesPerMB, maxMB)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: %s is %s", ErrNotAnImage, filepath.Base(path), mimeType)
	}

	return Encode(mimeType, data), nil
}

// Inspect decodes the image header of a data URL.
func Inspect(s string) (*Details, error) {
	mimeType, data, err := Decode(s)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	return &Details{
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
		SizeMB:   float64(len(data)) / bytesPerMB,
	}, nil
}

// WriteFile decodes s into dir. The name is normalized to a portable file
// name and given an extension matching the media type when it has none.
// The written path is returned.
func WriteFile(dir, name, s string) (string, error) {
	mimeType, data, err := Decode(s)
	if err != nil {
		return "", err
	}

	base := sanitize.FileName(name)
	if base == "" {
		return "", ErrEmptyName
	}

	if filepath.Ext(base) == "" {
		base += extension(mimeType)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec,mnd
		return "", err
	}

	path := filepath.Join(dir, base)

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec,mnd
		return "", err
	}

	return path, nil
}

func extension(mimeType string) string {
	mediaType, _, _ := mime.ParseMediaType(mimeType)

	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}

	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}

	return ".bin"
}
