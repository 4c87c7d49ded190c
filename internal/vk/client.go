// Package vk talks to the VK API on behalf of a community: it sends
// messages with keyboards and photo attachments and decodes Callback API
// events.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/snospb/vk-sno-bot/internal/errors"
	"github.com/snospb/vk-sno-bot/internal/metrics"
	"github.com/snospb/vk-sno-bot/internal/ratelimit"
)

// API defaults.
const (
	DefaultBaseURL    = "https://api.vk.com/method"
	DefaultAPIVersion = "5.131"

	// MaxMessageLength is the messages.send text limit in characters.
	MaxMessageLength = 4096

	// maxResponseBytes bounds API response bodies read into memory.
	maxResponseBytes = 1 << 20
)

// Error codes returned by the VK API that callers may act on.
const (
	ErrCodeAuthFailed      = 5
	ErrCodeTooManyRequests = 6
	ErrCodeFlood           = 9
	ErrCodeInternal        = 10
	ErrCodeCannotSend      = 901 // user has not allowed messages from the community
)

// APIError is an {"error": {...}} body returned by the VK API.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// Reply is one outbound message.
type Reply struct {
	PeerID   int64
	Text     string
	Keyboard *Keyboard
	// Photo is attached when non-nil; upload failures degrade to text only.
	Photo *Photo
}

// Photo is an image to attach. Key identifies it in the upload cache; the
// bytes come from Path when set, otherwise from URL.
type Photo struct {
	Key  string
	Path string
	URL  string
}

// Sender delivers replies. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, r Reply) error
}

// Config configures the API client.
type Config struct {
	AccessToken string
	APIVersion  string
	BaseURL     string
	HTTPClient  *http.Client
	// Throttle paces every API call; nil disables pacing.
	Throttle *ratelimit.Throttle
	Metrics  *metrics.Metrics
	// UploadTimeout bounds one photo upload flow.
	UploadTimeout time.Duration
}

// Client is a VK API client for a community access token.
type Client struct {
	token         string
	version       string
	baseURL       string
	http          *http.Client
	throttle      *ratelimit.Throttle
	metrics       *metrics.Metrics
	uploadTimeout time.Duration

	photos   sync.Map // Photo.Key -> attachment string
	uploadSF singleflight.Group
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	c := &Client{
		token:         cfg.AccessToken,
		version:       cfg.APIVersion,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          cfg.HTTPClient,
		throttle:      cfg.Throttle,
		metrics:       cfg.Metrics,
		uploadTimeout: cfg.UploadTimeout,
	}
	if c.version == "" {
		c.version = DefaultAPIVersion
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = 20 * time.Second
	}
	return c
}

// Send delivers r with messages.send. Errors wrap apperrors.ErrSendFailed.
func (c *Client) Send(ctx context.Context, r Reply) error {
	params := url.Values{
		"peer_id":   {strconv.FormatInt(r.PeerID, 10)},
		"message":   {Truncate(r.Text, MaxMessageLength)},
		"random_id": {strconv.FormatInt(int64(rand.Int32()), 10)},
	}
	if r.Keyboard != nil {
		kb, err := r.Keyboard.JSON()
		if err != nil {
			return fmt.Errorf("%w: encode keyboard: %w", apperrors.ErrSendFailed, err)
		}
		params.Set("keyboard", kb)
	}
	if r.Photo != nil {
		attachment, err := c.PhotoAttachment(ctx, r.PeerID, *r.Photo)
		if err != nil {
			c.recordHTTPError("photo_upload")
			slog.WarnContext(ctx, "photo upload failed, sending text only", "photo", r.Photo.Key, "error", err)
		} else {
			params.Set("attachment", attachment)
		}
	}

	if err := c.call(ctx, "messages.send", params, nil); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSendFailed, err)
	}
	return nil
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *APIError       `json:"error"`
}

// call performs one API method and decodes its response into out (if non-nil).
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	wrapper := apperrors.NewWrapper("vk", method)

	if c.throttle != nil {
		if err := c.throttle.Acquire(ctx); err != nil {
			return wrapper.Wrap(err, "throttle wait canceled")
		}
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("access_token", c.token)
	form.Set("v", c.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return wrapper.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	status := "success"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordVKRequest(method, status, time.Since(start).Seconds())
		}
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		status = "transport_error"
		return wrapper.Wrap(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		status = "transport_error"
		return wrapper.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		status = "http_error"
		return wrapper.Wrapf(fmt.Errorf("unexpected status %d", resp.StatusCode), "http %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		status = "decode_error"
		return wrapper.Wrap(err, "decode response")
	}
	if env.Error != nil {
		status = "api_error"
		return wrapper.Wrapf(env.Error, "api error %d", env.Error.Code)
	}
	if out != nil {
		if err := json.Unmarshal(env.Response, out); err != nil {
			status = "decode_error"
			return wrapper.Wrap(err, "decode response body")
		}
	}
	return nil
}

func (c *Client) recordHTTPError(errType string) {
	if c.metrics != nil {
		c.metrics.RecordHTTPError(errType, "vk")
	}
}

// Truncate shortens text to at most limit characters, ending with an ellipsis
// when cut.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + "…"
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(out)
}
