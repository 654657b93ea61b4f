package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/BDNK1/flowtest/runtime/plugin"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// selectorHeader is consumed by the engine and never sent upstream.
const selectorHeader = "api_context"

// Config holds the HTTP plugin configuration with declarative tags
type Config struct {
	BaseURL     string            `yaml:"base_url" validate:"omitempty,url_format"`
	Timeout     time.Duration     `yaml:"timeout" default:"30s" validate:"gte=1ms"`
	MaxRetries  int               `yaml:"max_retries" default:"0" validate:"gte=0,lte=10"`
	RetryWaitMS int               `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool              `yaml:"debug" default:"false"`
	Headers     map[string]string `yaml:"headers"`
}

// AuthInput configures static credentials for a session.
type AuthInput struct {
	Bearer   string `json:"bearer"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginInput describes a request whose response yields the session token.
type LoginInput struct {
	Method      string            `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH"`
	URL         string            `json:"url" validate:"required"`
	Headers     map[string]string `json:"headers"`
	Body        any               `json:"body"`
	Form        map[string]any    `json:"form"`
	TokenPath   string            `json:"token_path"`
	TokenHeader string            `json:"token_header"`
	TokenScheme string            `json:"token_scheme"`
}

// SessionInput defines the typed input for http.session
type SessionInput struct {
	Name    string            `json:"name"`
	BaseURL string            `json:"base_url"`
	Headers map[string]string `json:"headers"`
	Auth    *AuthInput        `json:"auth"`
	Login   *LoginInput       `json:"login"`
}

// RequestInput defines the typed input for http.request
type RequestInput struct {
	URL          string         `json:"url" validate:"required"`
	Method       string         `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers      map[string]any `json:"headers"`
	QueryParams  map[string]any `json:"query_parameters"`
	Body         any            `json:"body"`
	Form         map[string]any `json:"form"`
	ExpectStatus []int          `json:"expect_status"`
}

// RequestOutput defines the typed output for http.request
type RequestOutput struct {
	Status     string            `json:"status"`
	StatusCode int               `json:"status_code"`
	IsError    bool              `json:"is_error"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body"`
	DurationMs int64             `json:"duration_ms"`
}

// HTTPPlugin creates HTTP sessions and sends requests through them.
type HTTPPlugin struct {
	Config Config
}

// Session produces a new *Session resource. With a login block the session
// authenticates first and carries the extracted token on every later request.
//
// Output: session, token, status_code, body.
func (h *HTTPPlugin) Session(call *plugin.Call, args plugin.Input) (plugin.Output, error) {
	var input SessionInput
	if err := decodeInput(args, &input); err != nil {
		return nil, err
	}

	name := input.Name
	if name == "" {
		name = call.StepID
	}
	session := h.newSession(name, input.BaseURL, input.Headers)

	if input.Auth != nil {
		switch {
		case input.Auth.Bearer != "":
			session.client.SetAuthToken(input.Auth.Bearer)
			session.token = input.Auth.Bearer
		case input.Auth.Username != "":
			session.client.SetBasicAuth(input.Auth.Username, input.Auth.Password)
		}
	}

	out := plugin.Output{"session": session, "token": session.token}
	if input.Login == nil {
		return out, nil
	}

	resp, body, err := session.login(call, *input.Login)
	if err != nil {
		return nil, err
	}
	call.Logger.InfoContext(call, fmt.Sprintf("Session %s logged in", name), "status", resp.StatusCode())

	out["token"] = session.token
	out["status_code"] = resp.StatusCode()
	out["body"] = body
	return out, nil
}

// Request sends one request through the step's session resource.
func (h *HTTPPlugin) Request(call *plugin.Call, input RequestInput) (RequestOutput, error) {
	session, ok := call.Resource.(*Session)
	if !ok || session == nil {
		return RequestOutput{}, fmt.Errorf("http.request: resource %s is not an http session", resourceName(call.Resource))
	}

	method := strings.ToUpper(input.Method)
	if method == "" {
		method = http.MethodGet
	}

	req := session.client.R().
		SetContext(call).
		SetHeaders(requestHeaders(input.Headers)).
		SetQueryParams(plugin.ToStringValueMap(input.QueryParams))
	switch {
	case input.Form != nil:
		req.SetFormData(flattenToFormData(input.Form, ""))
	case input.Body != nil:
		req.SetBody(input.Body)
	}

	resp, err := req.Execute(method, input.URL)
	if err != nil {
		return RequestOutput{}, fmt.Errorf("HTTP request failed: %w", err)
	}

	output := RequestOutput{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
		Headers:    firstValues(resp.Header()),
		Body:       parseBody(resp.Body()),
		DurationMs: resp.Time().Milliseconds(),
	}

	if len(input.ExpectStatus) > 0 && !slices.Contains(input.ExpectStatus, output.StatusCode) {
		return RequestOutput{}, plugin.NewTaskError(
			fmt.Errorf("%s %s: unexpected status %d, want one of %v", method, input.URL, output.StatusCode, input.ExpectStatus)).
			WithType("unexpected_status").
			WithMetadata("status_code", output.StatusCode).
			WithMetadata("body", output.Body)
	}
	return output, nil
}

// DefaultResource gives every flow its own anonymous session on the
// configured base URL, so cookies never leak between flows.
func (h *HTTPPlugin) DefaultResource(ctx context.Context) (plugin.Resource, error) {
	return h.newSession("default", "", nil), nil
}

func (h *HTTPPlugin) newSession(name, baseURL string, headers map[string]string) *Session {
	if baseURL == "" {
		baseURL = h.Config.BaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(h.Config.Timeout).
		SetRetryCount(h.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(h.Config.RetryWaitMS) * time.Millisecond).
		SetDebug(h.Config.Debug).
		SetHeaders(h.Config.Headers).
		SetHeaders(headers)

	return &Session{id: uuid.NewString(), name: name, client: client}
}

func decodeInput(args plugin.Input, out any) error {
	if err := plugin.Decode(args, out); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

func requestHeaders(headers map[string]any) map[string]string {
	out := plugin.ToStringValueMap(headers)
	delete(out, selectorHeader)
	return out
}

func firstValues(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// parseBody decodes a JSON body into plain Go values and returns any other
// body as text.
func parseBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if gjson.ValidBytes(body) {
		return gjson.ParseBytes(body).Value()
	}
	return string(body)
}

func resourceName(r plugin.Resource) string {
	if r == nil {
		return "<none>"
	}
	return fmt.Sprintf("%T", r)
}

var errNoToken = errors.New("login response carries no token")
