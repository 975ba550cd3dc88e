package httpclient

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16

	// UserAgent is sent on every outbound request. Some playlist and guide
	// hosts reject the Go default agent.
	UserAgent = "iptv-core/1.0"
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
			// Decoding happens in DecodeBody so br can be offered too.
			DisableCompression: true,
		},
	}
}

// Default returns the shared tuned HTTP client for playlist, guide and
// artwork fetches.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and the same transport as Default (or a copy).
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}

// PrepareRequest sets the headers every outbound request carries: our agent
// string and the compressed encodings we can decode.
func PrepareRequest(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
}

// DecodeBody wraps a response body according to its Content-Encoding.
// Plain and "identity" bodies pass through. The caller closes the returned
// reader; closing it closes the underlying body too.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: gzip body: %w", err)
		}
		return &decodedBody{r: gz, underlying: resp.Body}, nil
	case "br":
		return &decodedBody{r: io.NopCloser(brotli.NewReader(resp.Body)), underlying: resp.Body}, nil
	default:
		return nil, fmt.Errorf("httpclient: unsupported content-encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

type decodedBody struct {
	r          io.ReadCloser
	underlying io.ReadCloser
}

func (d *decodedBody) Read(p []byte) (int, error) { return d.r.Read(p) }

func (d *decodedBody) Close() error {
	err := d.r.Close()
	if uerr := d.underlying.Close(); err == nil {
		err = uerr
	}
	return err
}
