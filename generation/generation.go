// Package generation defines the wire contract of the generate endpoint:
// request and response bodies, styles, and the status codes and markers
// clients use to classify failures.
package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// Path is where the endpoint is mounted.
	Path = "/api/generate"

	// StatusOverloaded together with OverloadedMessage in the JSON body
	// marks a transient "model overloaded" condition.
	StatusOverloaded  = http.StatusServiceUnavailable
	OverloadedMessage = "Model overloaded"

	// StatusClientClosedRequest is returned when the caller cancels while
	// the request is still being processed.
	StatusClientClosedRequest = 499
	ClientClosedMessage       = "Request aborted by the client"

	// InternalErrorMessage accompanies any other failure.
	InternalErrorMessage = "Error processing the request"

	// MaxFileMB caps the size of an uploaded image.
	MaxFileMB = 10

	// HistoryLimit is how many past generations are kept.
	HistoryLimit = 5

	// MaxPromptLength bounds the prompt in runes.
	MaxPromptLength = 2000
)

// ErrUnknownStyle is returned when parsing an unsupported style name.
var ErrUnknownStyle = errors.New("unknown style")

// Style is one of the supported visual styles.
type Style string

const (
	StyleEditorial  Style = "Editorial"
	StyleStreetwear Style = "Streetwear"
	StyleVintage    Style = "Vintage"
)

// Styles lists every supported style in display order.
func Styles() []Style {
	return []Style{StyleEditorial, StyleStreetwear, StyleVintage}
}

// ParseStyle matches s case-insensitively against the supported styles.
func ParseStyle(s string) (Style, error) {
	for _, style := range Styles() {
		if strings.EqualFold(string(style), strings.TrimSpace(s)) {
			return style, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, s)
}

// Request is the body of a generate call.
type Request struct {
	ImageDataURL string `json:"imageDataUrl" validate:"required,datauri"`
	Prompt       string `json:"prompt"       validate:"max=2000"`
	Style        Style  `json:"style"        validate:"required,oneof=Editorial Streetwear Vintage"`
}

// Response is the body of a successful generate call.
type Response struct {
	ID        string    `json:"id"`
	DataURL   string    `json:"dataUrl"`
	Prompt    string    `json:"prompt"`
	Style     Style     `json:"style"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrorBody is the JSON body of failure responses.
type ErrorBody struct {
	Message string `json:"message"`
}

// IsOverloaded reports whether a response with this status and body
// carries the overload marker. Bodies that are not JSON never match.
func IsOverloaded(status int, body []byte) bool {
	if status != StatusOverloaded {
		return false
	}

	var msg ErrorBody
	if err := json.Unmarshal(body, &msg); err != nil {
		return false
	}

	return msg.Message == OverloadedMessage
}
