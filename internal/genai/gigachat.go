package genai

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3/option"
)

// tokenRefreshMargin renews GigaChat tokens before they expire.
const tokenRefreshMargin = time.Minute

// gigachatTokenSource exchanges the authorization key for short-lived access
// tokens (30 minutes) and caches them.
type gigachatTokenSource struct {
	authURL     string
	credentials string
	scope       string
	httpClient  *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

type gigachatTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

// Token returns a cached token or fetches a new one.
func (s *gigachatTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Until(s.expires) > tokenRefreshMargin {
		return s.token, nil
	}

	form := url.Values{"scope": {s.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+s.credentials)
	req.Header.Set("RqUID", uuid.NewString())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", WrapError(fmt.Errorf("token request: %w", err), ProviderGigaChat)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &LLMError{
			Err:        fmt.Errorf("token request rejected: %s", strings.TrimSpace(string(body))),
			StatusCode: resp.StatusCode,
			Provider:   ProviderGigaChat,
		}
	}

	var tr gigachatTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", WrapError(fmt.Errorf("decode token: %w", err), ProviderGigaChat)
	}
	if tr.AccessToken == "" {
		return "", WrapError(fmt.Errorf("token response without access_token"), ProviderGigaChat)
	}

	s.token = tr.AccessToken
	s.expires = time.UnixMilli(tr.ExpiresAt)
	return s.token, nil
}

// middleware sets a fresh bearer token on every chat request.
func (s *gigachatTokenSource) middleware(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	token, err := s.Token(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return next(req)
}

// newGigaChatAnswerer returns nil when no credentials are configured.
func newGigaChatAnswerer(cfg GigaChatConfig, httpClient *http.Client) *openaiAnswerer {
	if cfg.Credentials == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	ts := &gigachatTokenSource{
		authURL:     cmp.Or(cfg.AuthURL, DefaultGigaChatAuthURL),
		credentials: cfg.Credentials,
		scope:       cmp.Or(cfg.Scope, DefaultGigaChatScope),
		httpClient:  httpClient,
	}
	return newOpenAIAnswerer(ProviderGigaChat, cmp.Or(cfg.Model, DefaultGigaChatModel),
		option.WithBaseURL(withTrailingSlash(cmp.Or(cfg.BaseURL, DefaultGigaChatBaseURL))),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithMiddleware(ts.middleware),
	)
}
