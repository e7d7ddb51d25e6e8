package transport

import (
	"io"
	"net/http"

	"github.com/amp-labs/restyle/closer"
	"github.com/fereidani/httpdecompressor"
)

// NewDecompressor wraps roundTripper so response bodies encoded with gzip,
// deflate, br, zstd, snappy or lz4 are decoded transparently. Pair it with an explicit
// Accept-Encoding header; net/http only decodes gzip on its own, and only
// when it added the header itself.
func NewDecompressor(roundTripper http.RoundTripper) http.RoundTripper {
	if roundTripper == nil {
		roundTripper = http.DefaultTransport
	}

	return &decompressor{roundTripper: roundTripper}
}

type decompressor struct {
	roundTripper http.RoundTripper
}

func (d *decompressor) RoundTrip(request *http.Request) (*http.Response, error) {
	rsp, err := d.roundTripper.RoundTrip(request)
	if err != nil {
		return rsp, err
	}

	origBody := rsp.Body

	bodyReader, err := httpdecompressor.Reader(rsp)
	if err != nil {
		_ = origBody.Close()

		return nil, err
	}

	if bodyReader == origBody {
		return rsp, nil
	}

	// The decoder closes before the body it reads from.
	rsp.Body = &decodedBody{
		Reader: bodyReader,
		closer: closer.NewCloser(origBody, bodyReader),
	}
	rsp.Header.Del("Content-Encoding")
	rsp.Header.Del("Content-Length")
	rsp.ContentLength = -1
	rsp.Uncompressed = true

	return rsp, nil
}

type decodedBody struct {
	io.Reader
	closer io.Closer
}

func (b *decodedBody) Close() error {
	return b.closer.Close()
}
