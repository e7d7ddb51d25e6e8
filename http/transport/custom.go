package transport

import (
	"fmt"
	"net/http"

	"github.com/amp-labs/restyle/errors"
)

// NewCustom adapts a function to http.RoundTripper. A nil function fails
// every request with errors.ErrNotImplemented, which flags unexpected
// network use in tests.
func NewCustom(roundTrip func(req *http.Request) (*http.Response, error)) http.RoundTripper {
	if roundTrip == nil {
		roundTrip = func(req *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("%w: RoundTrip %s %s", errors.ErrNotImplemented, req.Method, req.URL)
		}
	}

	return &customTransport{roundTrip: roundTrip}
}

type customTransport struct {
	roundTrip func(req *http.Request) (*http.Response, error)
}

func (c *customTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	return c.roundTrip(request)
}
