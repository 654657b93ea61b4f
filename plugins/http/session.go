package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/BDNK1/flowtest/runtime/plugin"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Session is an HTTP client bound to one identity: its base URL, default
// headers, cookie jar and auth token. Steps select it through
// headers.api_context.
type Session struct {
	id     string
	name   string
	token  string
	client *resty.Client
}

func (s *Session) String() string {
	return "http.session(" + s.name + ")"
}

func (s *Session) ID() string { return s.id }

func (s *Session) Name() string { return s.name }

func (s *Session) Token() string { return s.token }

// Client exposes the underlying resty client.
func (s *Session) Client() *resty.Client { return s.client }

// Close drops idle keep-alive connections held by the session.
func (s *Session) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

func (s *Session) login(call *plugin.Call, in LoginInput) (*resty.Response, any, error) {
	method := strings.ToUpper(in.Method)
	if method == "" {
		method = http.MethodPost
	}

	req := s.client.R().SetContext(call).SetHeaders(in.Headers)
	switch {
	case in.Form != nil:
		req.SetFormData(flattenToFormData(in.Form, ""))
	case in.Body != nil:
		req.SetBody(in.Body)
	}

	resp, err := req.Execute(method, in.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("login request failed: %w", err)
	}
	body := parseBody(resp.Body())
	if resp.IsError() {
		return nil, nil, plugin.NewTaskError(fmt.Errorf("login %s %s: status %d", method, in.URL, resp.StatusCode())).
			WithType("login_failed").
			WithMetadata("status_code", resp.StatusCode()).
			WithMetadata("body", body)
	}

	if in.TokenPath == "" {
		return resp, body, nil
	}

	token := gjson.GetBytes(resp.Body(), in.TokenPath)
	if !token.Exists() || token.String() == "" {
		return nil, nil, plugin.NewTaskError(fmt.Errorf("%w at %q", errNoToken, in.TokenPath)).
			WithType("login_failed").
			WithMetadata("body", body)
	}
	s.token = token.String()

	header := in.TokenHeader
	if header == "" {
		header = "Authorization"
	}
	scheme := in.TokenScheme
	if scheme == "" && strings.EqualFold(header, "Authorization") {
		scheme = "Bearer"
	}
	value := s.token
	if scheme != "" {
		value = scheme + " " + s.token
	}
	s.client.SetHeader(header, value)

	return resp, body, nil
}
