package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGatewayTimeout = 5 * time.Second
	maxErrorBodyBytes     = 4 << 10
)

var errMissingBaseURL = errors.New("client: base url is required")

// Route selects which server routes a gateway speaks to.
type Route int

const (
	// RoutePrimary uses the regular JSON routes.
	RoutePrimary Route = iota
	// RouteFallback uses the secondary like route and the click beacon.
	RouteFallback
)

func (r Route) String() string {
	if r == RouteFallback {
		return "fallback"
	}
	return "primary"
}

// HTTPGatewayConfig describes an HTTP transport to the engagement API.
type HTTPGatewayConfig struct {
	BaseURL      string
	Route        Route
	SessionToken string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// HTTPGateway speaks the engagement JSON contract over HTTP.
type HTTPGateway struct {
	baseURL      string
	route        Route
	sessionToken string
	httpClient   *http.Client
	timeout      time.Duration
}

// NewHTTPGateway constructs an HTTPGateway.
func NewHTTPGateway(cfg HTTPGatewayConfig) (*HTTPGateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &HTTPGateway{
		baseURL:      baseURL,
		route:        cfg.Route,
		sessionToken: strings.TrimSpace(cfg.SessionToken),
		httpClient:   httpClient,
		timeout:      timeout,
	}, nil
}

type linkRequestPayload struct {
	LinkID string `json:"linkId"`
}

type toggleResponsePayload struct {
	Liked      bool   `json:"liked"`
	LikesCount int64  `json:"likesCount"`
	Message    string `json:"message"`
}

type clickResponsePayload struct {
	Clicks int64 `json:"clicks"`
}

type snapshotResponsePayload struct {
	LinkID        string `json:"linkId"`
	LikesCount    int64  `json:"likesCount"`
	LikedByViewer bool   `json:"likedByViewer"`
	Clicks        int64  `json:"clicks"`
}

type errorResponsePayload struct {
	Error      string `json:"error"`
	LikesCount *int64 `json:"likesCount"`
}

func (g *HTTPGateway) ToggleLike(ctx context.Context, linkID string) (ToggleOutcome, error) {
	path := "/api/likes/toggle"
	if g.route == RouteFallback {
		path = "/api/likes/toggle/fallback"
	}
	var response toggleResponsePayload
	if err := g.do(ctx, http.MethodPost, path, linkRequestPayload{LinkID: linkID}, &response); err != nil {
		return ToggleOutcome{}, err
	}
	return ToggleOutcome{Liked: response.Liked, LikesCount: response.LikesCount, Message: response.Message}, nil
}

func (g *HTTPGateway) RecordClick(ctx context.Context, linkID string) (int64, error) {
	var response clickResponsePayload
	var err error
	if g.route == RouteFallback {
		path := "/api/clicks/beacon?linkId=" + url.QueryEscape(linkID)
		err = g.do(ctx, http.MethodPost, path, nil, &response)
	} else {
		err = g.do(ctx, http.MethodPost, "/api/clicks", linkRequestPayload{LinkID: linkID}, &response)
	}
	if err != nil {
		return 0, err
	}
	return response.Clicks, nil
}

func (g *HTTPGateway) Snapshot(ctx context.Context, linkID string) (ServerSnapshot, error) {
	var response snapshotResponsePayload
	path := "/api/links/" + url.PathEscape(linkID) + "/engagement"
	if err := g.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return ServerSnapshot{}, err
	}
	return ServerSnapshot{
		LinkID:        response.LinkID,
		LikesCount:    response.LikesCount,
		LikedByViewer: response.LikedByViewer,
		Clicks:        response.Clicks,
	}, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return &GatewayError{Kind: ErrInvalidInput, Message: err.Error()}
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &GatewayError{Kind: ErrInvalidInput, Message: err.Error()}
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept", "application/json")
	if g.sessionToken != "" {
		request.Header.Set("Authorization", "Bearer "+g.sessionToken)
	}

	response, err := g.httpClient.Do(request)
	if err != nil {
		return &GatewayError{Kind: ErrTransient, Message: err.Error()}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return decodeErrorResponse(response)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return &GatewayError{Kind: ErrTransient, Status: response.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func decodeErrorResponse(response *http.Response) error {
	gatewayErr := &GatewayError{Kind: kindForStatus(response.StatusCode), Status: response.StatusCode}
	var payload errorResponsePayload
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	if err := json.Unmarshal(raw, &payload); err == nil {
		gatewayErr.Message = payload.Error
		gatewayErr.LikesCount = payload.LikesCount
	}
	if gatewayErr.Message == "" {
		gatewayErr.Message = http.StatusText(response.StatusCode)
	}
	return gatewayErr
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthenticated
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrTransient
	}
}
