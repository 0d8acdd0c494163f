// Copyright 2024-2026 Aiku AI

// Package slack is the boundary to the remote platform: an authenticated
// request/response caller keyed by Web API method name, a cursor pagination
// helper, and the long-lived RTM event feed. The gateway core operates on
// the wire-level representation (method names, parameter maps, raw JSON
// payloads) rather than typed bindings so arbitrary methods can be invoked
// uniformly, including from the client-facing @slack meta-command.
package slack

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Caller issues one authenticated Web API call. Implementations return the
// full response payload; a response with ok=false yields an *APIError and
// the payload is still returned for diagnostics.
type Caller interface {
	Call(ctx context.Context, method string, params map[string]any) (gjson.Result, error)
}

// APIError reports a Web API call whose response carried ok=false, or one
// that failed at the transport level. It retains the method and parameters
// for session-scoped diagnostics.
type APIError struct {
	Method string
	Params map[string]any
	Reason string
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("slack: %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("slack: %s: %s", e.Method, e.Reason)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

const defaultBaseURL = "https://slack.com/api"

// Client is the production Caller, posting form-encoded requests to the
// Web API over HTTP.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// ClientOption adjusts a Client at construction time.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint, for tests and compatible servers.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.http.SetBaseURL(url) }
}

// WithCookie attaches the "d" session cookie required alongside xoxc browser
// tokens.
func WithCookie(cookie string) ClientOption {
	return func(c *Client) { c.http.SetHeader("Cookie", "d="+cookie) }
}

// NewClient creates a Web API client authenticated with token.
func NewClient(token string, log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().SetBaseURL(defaultBaseURL).SetAuthToken(token),
		log:  log.With().Str("component", "slack_web").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call implements Caller. Parameter values are rendered with fmt.Sprint, so
// bools and ints serialize the way the API expects.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	form := make(map[string]string, len(params))
	for k, v := range params {
		form[k] = fmt.Sprint(v)
	}
	c.log.Debug().Str("method", method).Msg("API call")

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post("/" + method)
	if err != nil {
		return gjson.Result{}, &APIError{Method: method, Params: params, Err: err}
	}

	payload := gjson.ParseBytes(resp.Body())
	if !payload.Get("ok").Bool() {
		return payload, &APIError{
			Method: method,
			Params: params,
			Reason: payload.Get("error").String(),
		}
	}
	return payload, nil
}
