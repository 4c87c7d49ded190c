package objstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/snospb/vk-sno-bot/internal/errors"
)

// fakeS3 is a path-style S3 endpoint holding objects of one bucket in memory.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + f.bucket
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.Error(w, "no such bucket", http.StatusNotFound)
		return
	}
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	if key == "" && r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	data, exists := f.objects[key]
	switch r.Method {
	case http.MethodHead:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", etagOf(data))
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if !exists {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("ETag", etagOf(data))
		_, _ = w.Write(data)
	case http.MethodPut:
		if r.Header.Get("If-None-Match") == "*" && exists {
			writeS3Error(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && (!exists || m != etagOf(data)) {
			writeS3Error(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", etagOf(body))
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>test</Message></Error>`)
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: "sno-media", objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := New(context.Background(), Config{
		Endpoint:        srv.URL,
		Bucket:          "sno-media",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	return client, fake
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	var verr *apperrors.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "bucket")
	assert.Contains(t, err.Error(), "credentials")
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		key  string
		want string
	}{
		{
			name: "default endpoint",
			cfg:  Config{Bucket: "sno", AccessKeyID: "k", SecretAccessKey: "s"},
			key:  "images/welcome.jpg",
			want: "https://storage.yandexcloud.net/sno/images/welcome.jpg",
		},
		{
			name: "custom public base",
			cfg:  Config{Bucket: "sno", AccessKeyID: "k", SecretAccessKey: "s", PublicBaseURL: "https://cdn.example.ru/"},
			key:  "/images/ai.jpg",
			want: "https://cdn.example.ru/images/ai.jpg",
		},
		{
			name: "escapes segments",
			cfg:  Config{Bucket: "sno", AccessKeyID: "k", SecretAccessKey: "s", PublicBaseURL: "https://cdn.example.ru"},
			key:  "images/фото 1.jpg",
			want: "https://cdn.example.ru/images/%D1%84%D0%BE%D1%82%D0%BE%201.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(context.Background(), tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.PublicURL(tt.key))
		})
	}
}

func TestClient_UploadHeadDownloadDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestClient(t)

	exists, err := c.Exists(ctx, "images/welcome.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = c.Head(ctx, "images/welcome.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	etag, err := c.Upload(ctx, "images/welcome.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.NotEmpty(t, etag)
	assert.NotContains(t, etag, `"`)

	info, err := c.Head(ctx, "images/welcome.jpg")
	require.NoError(t, err)
	assert.Equal(t, etag, info.ETag)
	assert.Equal(t, "image/jpeg", info.ContentType)

	exists, err = c.Exists(ctx, "images/welcome.jpg")
	require.NoError(t, err)
	assert.True(t, exists)

	body, gotETag, err := c.Download(ctx, "images/welcome.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	_ = body.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, etag, gotETag)

	require.NoError(t, c.Delete(ctx, "images/welcome.jpg"))
	_, _, err = c.Download(ctx, "images/welcome.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ConditionalPuts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestClient(t)

	created, etag, err := c.PutIfNotExists(ctx, "locks/job.lock", strings.NewReader("a"), "application/json")
	require.NoError(t, err)
	require.True(t, created)

	created, _, err = c.PutIfNotExists(ctx, "locks/job.lock", strings.NewReader("b"), "application/json")
	require.NoError(t, err)
	assert.False(t, created, "second create must hit the precondition")

	updated, _, err := c.PutIfMatch(ctx, "locks/job.lock", strings.NewReader("c"), "stale", "application/json")
	require.NoError(t, err)
	assert.False(t, updated)

	updated, newETag, err := c.PutIfMatch(ctx, "locks/job.lock", strings.NewReader("c"), etag, "application/json")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NotEqual(t, etag, newETag)
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))
}
