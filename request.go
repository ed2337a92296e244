package ddnsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	// DefaultMaxRedirects is the redirect cap used when a negative cap is given.
	DefaultMaxRedirects = 5

	// DefaultTimeout bounds every request made with the default HTTP client.
	DefaultTimeout = 15 * time.Second
)

// ErrTooManyRedirects is returned when a redirect chain is longer than the configured cap.
var ErrTooManyRedirects = errors.New("too many redirects")

// Response is a completed request with a 2xx status.
//
// Data holds the decoded JSON body, with numbers as json.Number.
// If the body was not valid JSON it holds map[string]any{"data": <raw text>},
// and an empty body decodes to an empty map.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       any
}

// Decode converts Data into v, which should be a pointer to a JSON-decodable value.
func (r *Response) Decode(v any) error {
	b, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("error encoding response data: %w", err)
	}
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	if err := d.Decode(v); err != nil {
		return fmt.Errorf("error decoding response data: %w", err)
	}
	return nil
}

// StatusError is returned when the server answered with a status that is neither 2xx nor a followed redirect.
type StatusError struct {
	StatusCode int
	// Body is the decoded error body, using the same rules as Response.Data.
	Body   any
	Header http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// TransportError is returned when no usable response was received at all:
// DNS failures, refused connections, timeouts and cancelled contexts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Requester issues HTTP requests and normalizes their results.
// It follows redirects itself and never retries.
type Requester struct {
	httpClient   *http.Client
	maxRedirects int
}

// NewRequester wraps httpclient.
// A nil httpclient selects a pooled client bounded by DefaultTimeout.
// A negative maxRedirects selects DefaultMaxRedirects; zero disables redirects.
func NewRequester(httpclient *http.Client, maxRedirects int) *Requester {
	r := &Requester{}
	r.setHTTPClient(httpclient)
	r.setMaxRedirects(maxRedirects)
	return r
}

func (r *Requester) setHTTPClient(httpclient *http.Client) {
	if httpclient == nil {
		httpclient = cleanhttp.DefaultPooledClient()
		httpclient.Timeout = DefaultTimeout
	}
	// copy so that redirects are handed back to us without touching the caller's client
	hc := *httpclient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	r.httpClient = &hc
}

func (r *Requester) setMaxRedirects(n int) {
	if n < 0 {
		n = DefaultMaxRedirects
	}
	r.maxRedirects = n
}

func (r *Requester) setTimeout(d time.Duration) {
	r.httpClient.Timeout = d
}

// Request sends method to url with the given headers and body.
//
// body may be nil, a string or []byte sent verbatim,
// or any other value which is encoded as JSON.
// JSON bodies get "Content-Type: application/json" unless header already sets a content type.
//
// Errors are *StatusError, *TransportError, or wrap ErrTooManyRedirects.
func (r *Requester) Request(ctx context.Context, url, method string, header map[string]string, body any) (*Response, error) {
	if method == "" {
		method = http.MethodGet
	}
	h := make(http.Header, len(header)+1)
	for k, v := range header {
		h.Set(k, v)
	}
	payload, err := encodeBody(body, h)
	if err != nil {
		return nil, err
	}

	redirects := 0
	for {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, fmt.Errorf("error creating request: %w", err)
		}
		req.Header = h.Clone()

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Err: err}
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != "" {
			next, err := resp.Location()
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("error parsing redirect location: %w", err)
			}
			if redirects >= r.maxRedirects {
				return nil, fmt.Errorf("%w (limit %d)", ErrTooManyRedirects, r.maxRedirects)
			}
			redirects++
			url = next.String()
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return nil, &TransportError{Err: fmt.Errorf("error reading response body: %w", readErr)}
			}
			return &Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Data:       decodeBody(raw),
			}, nil
		}

		var errBody any = map[string]any{}
		if readErr == nil {
			errBody = decodeBody(raw)
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       errBody,
			Header:     resp.Header,
		}
	}
}

func encodeBody(body any, h http.Header) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		if b == "" {
			return nil, nil
		}
		return []byte(b), nil
	case []byte:
		if len(b) == 0 {
			return nil, nil
		}
		return b, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error encoding request body: %w", err)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	return payload, nil
}

func decodeBody(raw []byte) any {
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return map[string]any{}
	}
	// numbers stay json.Number so that integers beyond float64 precision survive
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return map[string]any{"data": text}
	}
	if _, err := d.Token(); err != io.EOF {
		return map[string]any{"data": text}
	}
	return v
}
