// Package apiclient is the single choke point for calls to the hospital
// backend. It injects the bearer token held by the session, encodes request
// bodies, splits successful replies into JSON or binary, and folds every
// failure into either an *HTTPError or a *TransportError.
//
// The client never retries, never imposes its own timeout and never
// de-duplicates concurrent calls. Each call runs once, to completion or
// failure. Cancellation is whatever the caller's context provides.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader is attached to every outgoing request.
const RequestIDHeader = "X-Request-ID"

// TokenSource yields the current bearer token, or "" when nobody is logged
// in. *session.Store satisfies it.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Options are the per-call request settings.
type Options struct {
	Method  string
	Headers map[string]string
	Body    Body
}

// Config configures a Client.
type Config struct {
	// BaseURL is prefixed to relative request URLs. Absolute URLs bypass it.
	BaseURL string
	// Tokens supplies the bearer token. Nil means requests are anonymous.
	Tokens TokenSource
	// HTTPClient defaults to a client without a timeout.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client issues authenticated requests. It is safe for concurrent use.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  zerolog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("%w: base url %q", ErrInvalidURL, cfg.BaseURL)
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		http:    hc,
		logger:  cfg.Logger.With().Str("component", "apiclient").Logger(),
	}, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Resolve turns a relative endpoint into an absolute URL.
func (c *Client) Resolve(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.IsAbs() {
		return endpoint, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: relative url %q without base url", ErrInvalidURL, endpoint)
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/"), nil
}

// Request performs one call. On 2xx it returns a JSON or binary Response
// depending on the declared content type. Otherwise it returns an
// *HTTPError, a *TransportError, or an ErrInvalidURL error.
//
// Caller headers are applied first; the derived Authorization and
// Content-Type headers then overwrite any caller value of the same name.
func (c *Client) Request(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	target, err := c.Resolve(endpoint)
	if err != nil {
		return nil, err
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType string
	)
	if opts.Body != nil {
		body, contentType, err = opts.Body.open()
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("url", target).Msg("request failed")
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug().
		Str("request_id", req.Header.Get(RequestIDHeader)).
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp.StatusCode, payload)
	}

	ct := resp.Header.Get("Content-Type")
	out := &Response{
		Status:      resp.StatusCode,
		ContentType: ct,
		Header:      resp.Header,
	}
	if IsJSONContentType(ct) {
		if !json.Valid(payload) {
			return nil, &TransportError{Method: method, URL: target, Err: ErrDecode}
		}
		out.Kind = KindJSON
		out.JSON = json.RawMessage(payload)
		return out, nil
	}
	out.Kind = KindBinary
	out.Binary = payload
	return out, nil
}

// IsJSONContentType reports whether a Content-Type value declares JSON.
func IsJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "application/json")
}

// messageFields are tried in order for a failure body's message.
var messageFields = []string{"message", "mensaje", "error"}

func errorFromResponse(status int, payload []byte) *HTTPError {
	herr := &HTTPError{Status: status, Message: StatusMessage(status)}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return herr
	}
	for _, f := range messageFields {
		if m, ok := body[f].(string); ok && m != "" {
			herr.Message = m
			break
		}
	}
	for _, f := range []string{"tipoError", "errorType"} {
		if k, ok := body[f].(string); ok && k != "" {
			herr.Kind = k
			break
		}
	}
	return herr
}

// GetJSON issues a GET and decodes the JSON reply into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.Request(ctx, endpoint, Options{})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// PostJSON serialises in, POSTs it, and decodes the JSON reply into out.
func (c *Client) PostJSON(ctx context.Context, endpoint string, in, out any) error {
	body, err := MarshalJSON(in)
	if err != nil {
		return err
	}
	resp, err := c.Request(ctx, endpoint, Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}
