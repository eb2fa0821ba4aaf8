// Package portal is the HTTP client for the academic portal backend and its
// AI query service.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Portal endpoints.
const (
	EndpointLogin         = "/app/login"
	EndpointProfile       = "/app/profile"
	EndpointAttendance    = "/app/attendance"
	EndpointResults       = "/app/results"
	EndpointEndSemResults = "/app/end-sem-results"
	EndpointTimetable     = "/app/timetable"
	EndpointAIQuery       = "/api/ai-query"
)

const (
	defaultBaseURL   = "https://etlabapp-backendv1.onrender.com"
	defaultAIBaseURL = "https://etlab-plus-ai-api.onrender.com"
	defaultTimeout   = 60 * time.Second
	defaultRPS       = 2

	maxErrorBodyBytes = 4 << 10
	noResponseText    = "No response received"
)

// Config holds the portal client configuration.
type Config struct {
	// BaseURL is the portal backend root.
	BaseURL string
	// AIBaseURL is the AI query service root.
	AIBaseURL string
	// Timeout bounds a single HTTP exchange. Callers usually set a tighter
	// deadline on the context.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests. Zero or less disables pacing.
	RequestsPerSecond float64
}

// DefaultConfig returns the default portal configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           defaultBaseURL,
		AIBaseURL:         defaultAIBaseURL,
		Timeout:           defaultTimeout,
		RequestsPerSecond: defaultRPS,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

// IsUnauthorized reports whether err is a 401 or 403 from the portal.
func IsUnauthorized(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
}

// Token is the login response.
type Token struct {
	Token    string `json:"token"`
	Type     string `json:"type"`
	Username string `json:"username"`
	// ExpiresAt is in milliseconds since the epoch.
	ExpiresAt int64 `json:"expiresAt"`
}

// Profile is the student profile. Only the fields the client shows are
// decoded.
type Profile struct {
	PersonalInfo struct {
		Name string `json:"Name"`
	} `json:"personal_info"`
	ContactInfo struct {
		MobileNumber string `json:"Mobile No"`
	} `json:"contact_info"`
	AcademicInfo struct {
		SRNumber        string `json:"SR No"`
		UniversityRegNo string `json:"University Reg No"`
	} `json:"academic_info"`
}

// Client talks to the portal backend.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new portal client. A nil config uses DefaultConfig.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
	}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	body := map[string]string{"username": username, "password": password}
	data, err := c.do(ctx, http.MethodPost, c.config.BaseURL, EndpointLogin, "", body)
	if err != nil {
		return nil, err
	}

	token := &Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, errors.Wrap(err, "failed to decode login response")
	}
	if token.Token == "" {
		return nil, errors.New("login response has no token")
	}
	return token, nil
}

// Fetch returns the raw JSON body of an authenticated GET endpoint.
func (c *Client) Fetch(ctx context.Context, token, endpoint string) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodGet, c.config.BaseURL, endpoint, token, nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, errors.Errorf("%s returned invalid JSON", endpoint)
	}
	return data, nil
}

// Profile fetches and decodes the student profile.
func (c *Client) Profile(ctx context.Context, token string) (*Profile, json.RawMessage, error) {
	raw, err := c.Fetch(ctx, token, EndpointProfile)
	if err != nil {
		return nil, nil, err
	}
	profile := &Profile{}
	if err := json.Unmarshal(raw, profile); err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode profile")
	}
	return profile, raw, nil
}

// aiResponse covers the Gemini-style and plain response shapes.
type aiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Response string `json:"response"`
}

func (r *aiResponse) text() string {
	if len(r.Candidates) > 0 {
		if parts := r.Candidates[0].Content.Parts; len(parts) > 0 && parts[0].Text != "" {
			return parts[0].Text
		}
		return noResponseText
	}
	if r.Response != "" {
		return r.Response
	}
	return noResponseText
}

// AskAI sends a question with its supporting data to the AI service and
// returns the answer text, which is usually markdown.
func (c *Client) AskAI(ctx context.Context, query string, data any) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is empty")
	}
	if data == nil {
		data = []any{}
	}

	body := map[string]any{"data": data, "query": query}
	raw, err := c.do(ctx, http.MethodPost, c.config.AIBaseURL, EndpointAIQuery, "", body)
	if err != nil {
		return "", err
	}

	var resp aiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", errors.Wrap(err, "failed to decode AI response")
	}
	return resp.text(), nil
}

func (c *Client) do(ctx context.Context, method, baseURL, endpoint, token string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrapf(err, "waiting to call %s", endpoint)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Debug("portal request failed",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", time.Since(start)))
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s response", endpoint)
	}
	slog.Debug("portal request completed",
		slog.String("endpoint", endpoint),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}
