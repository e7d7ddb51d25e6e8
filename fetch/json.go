package fetch

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONCaller calls one endpoint and decodes 2xx bodies into T. It
// satisfies executor.Caller.
type JSONCaller[T any] struct {
	Client *Client
}

// NewJSONCaller wraps client.
func NewJSONCaller[T any](client *Client) *JSONCaller[T] {
	return &JSONCaller[T]{Client: client}
}

func (j *JSONCaller[T]) Call(ctx context.Context, req Request) (T, error) {
	var zero T

	rsp, err := j.Client.Do(ctx, req)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(rsp.Body, &out); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return out, nil
}
