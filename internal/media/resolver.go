// Package media resolves the illustration attached to an intent's reply.
// Images are looked up in a local directory first and then in object storage.
package media

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/snospb/vk-sno-bot/internal/intent"
	"github.com/snospb/vk-sno-bot/internal/logger"
	"github.com/snospb/vk-sno-bot/internal/metrics"
)

// MinLocalSize is the smallest local file accepted as an image.
// Smaller files are treated as placeholders left in the repository.
const MinLocalSize = 100

// Resolution sources reported to metrics.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceNone   = "none"
	SourceError  = "error"
)

// DefaultRemoteTTL is how long a remote lookup result is reused.
const DefaultRemoteTTL = 10 * time.Minute

// imageNames maps each intent to its file name.
var imageNames = map[intent.Intent]string{
	intent.Greeting: "welcome.jpg",
	intent.Events:   "events.jpg",
	intent.Circles:  "circles.jpg",
	intent.Contacts: "contacts.jpg",
	intent.FAQ:      "faq.jpg",
	intent.AIHelper: "ai.jpg",
}

// ImageName returns the file name for i, or "" when it has none.
func ImageName(i intent.Intent) string {
	return imageNames[i]
}

// Image is a resolved illustration. Exactly one of Path and URL is set.
type Image struct {
	Name string
	Path string
	URL  string
}

// RemoteStore is the object storage lookup used after the local directory.
type RemoteStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// Config configures a Resolver.
type Config struct {
	Dir          string      // Local image directory; empty disables local lookup
	Remote       RemoteStore // Optional
	RemotePrefix string      // Object key prefix, e.g. "images/"
	RemoteTTL    time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
}

type remoteEntry struct {
	url     string
	expires time.Time
}

// Resolver finds intent images.
type Resolver struct {
	cfg Config
	now func() time.Time

	sf    singleflight.Group
	mu    sync.RWMutex
	cache map[string]remoteEntry
}

// NewResolver creates a resolver.
func NewResolver(cfg Config) *Resolver {
	if cfg.RemoteTTL <= 0 {
		cfg.RemoteTTL = DefaultRemoteTTL
	}
	return &Resolver{
		cfg:   cfg,
		now:   time.Now,
		cache: make(map[string]remoteEntry),
	}
}

// Resolve returns the image for i. A local file of at least MinLocalSize
// bytes wins; otherwise the object key is checked remotely. The second
// result is false when no image is available. Lookup failures never
// propagate: the reply is simply sent without an image.
func (r *Resolver) Resolve(ctx context.Context, i intent.Intent) (Image, bool) {
	if r == nil {
		return Image{}, false
	}
	name := ImageName(i)
	if name == "" {
		r.record(SourceNone)
		return Image{}, false
	}

	if p, ok := r.local(name); ok {
		r.record(SourceLocal)
		return Image{Name: name, Path: p}, true
	}

	if r.cfg.Remote == nil {
		r.record(SourceNone)
		return Image{}, false
	}

	url, err := r.remote(ctx, name)
	switch {
	case err != nil:
		r.record(SourceError)
		if r.cfg.Logger != nil {
			r.cfg.Logger.WithError(err).WithField("image", name).Warn("Remote image lookup failed")
		}
		return Image{}, false
	case url == "":
		r.record(SourceNone)
		return Image{}, false
	default:
		r.record(SourceRemote)
		return Image{Name: name, URL: url}, true
	}
}

func (r *Resolver) local(name string) (string, bool) {
	if r.cfg.Dir == "" {
		return "", false
	}
	p := filepath.Join(r.cfg.Dir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() || info.Size() < MinLocalSize {
		return "", false
	}
	return p, true
}

// remote returns the public URL of name, or "" when the object is absent.
// Negative results are cached too so a missing image costs one HEAD per TTL.
func (r *Resolver) remote(ctx context.Context, name string) (string, error) {
	key := path.Join(r.cfg.RemotePrefix, name)

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expires) {
		return entry.url, nil
	}

	v, err, shared := r.sf.Do(key, func() (any, error) {
		exists, err := r.cfg.Remote.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		url := ""
		if exists {
			url = r.cfg.Remote.PublicURL(key)
		}
		r.mu.Lock()
		r.cache[key] = remoteEntry{url: url, expires: r.now().Add(r.cfg.RemoteTTL)}
		r.mu.Unlock()
		return url, nil
	})
	if shared && r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordSingleflightDedup("media")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops cached remote lookups.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()
}

func (r *Resolver) record(source string) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordMediaResolve(source)
	}
}
