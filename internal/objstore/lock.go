package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConditionalStore is the subset of Client a DistributedLock needs.
type ConditionalStore interface {
	PutIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error)
	PutIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// LockInfo is the JSON body of a lock object.
type LockInfo struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DistributedLock is a lease stored as an object and guarded by
// conditional writes, so only one replica runs a background job at a time.
type DistributedLock struct {
	store   ConditionalStore
	key     string
	ttl     time.Duration
	ownerID string
	now     func() time.Time

	mu   sync.Mutex
	etag string
}

// NewDistributedLock creates a lock on key with the given lease duration.
func NewDistributedLock(store ConditionalStore, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		store:   store,
		key:     key,
		ttl:     ttl,
		ownerID: uuid.NewString(),
		now:     time.Now,
	}
}

// OwnerID returns the identifier written into the lock object.
func (l *DistributedLock) OwnerID() string {
	return l.ownerID
}

// Acquire takes the lock. It returns false without error when another
// owner holds an unexpired lease.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	data, err := l.lease()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	created, etag, err := l.store.PutIfNotExists(ctx, l.key, bytes.NewReader(data), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.setETag(etag)
		return true, nil
	}

	info, oldETag, err := l.read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		// Released between our two calls; try once more from scratch.
		created, etag, err = l.store.PutIfNotExists(ctx, l.key, bytes.NewReader(data), "application/json")
		if err != nil {
			return false, fmt.Errorf("acquire lock: %w", err)
		}
		if created {
			l.setETag(etag)
		}
		return created, nil
	case err != nil:
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	if info != nil && l.now().Before(info.ExpiresAt) {
		return false, nil
	}

	stolen, newETag, err := l.store.PutIfMatch(ctx, l.key, bytes.NewReader(data), oldETag, "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: take over expired lease: %w", err)
	}
	if stolen {
		l.setETag(newETag)
	}
	return stolen, nil
}

// Renew extends the lease. It returns false when the lock was lost.
func (l *DistributedLock) Renew(ctx context.Context) (bool, error) {
	etag := l.getETag()
	if etag == "" {
		return false, nil
	}
	data, err := l.lease()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}

	updated, newETag, err := l.store.PutIfMatch(ctx, l.key, bytes.NewReader(data), etag, "application/json")
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	if !updated {
		l.setETag("")
		return false, nil
	}
	l.setETag(newETag)
	return true, nil
}

// Release deletes the lock object if this instance still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	defer l.setETag("")

	info, _, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if info != nil && info.Owner != l.ownerID {
		return nil
	}
	return l.store.Delete(ctx, l.key)
}

// Do runs fn while holding the lock and renews the lease every ttl/3.
// fn's context is canceled if the lease is lost. Do reports whether fn ran.
func (l *DistributedLock) Do(ctx context.Context, fn func(ctx context.Context) error) (bool, error) {
	acquired, err := l.Acquire(ctx)
	if err != nil || !acquired {
		return false, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx)
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(max(l.ttl/3, time.Second))
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				ok, err := l.Renew(runCtx)
				if runCtx.Err() != nil {
					return
				}
				if err != nil || !ok {
					cancel(errLeaseLost)
					return
				}
			}
		}
	})

	err = fn(runCtx)
	cancel(nil)
	wg.Wait()
	return true, err
}

var errLeaseLost = errors.New("objstore: lock lease lost")

func (l *DistributedLock) lease() ([]byte, error) {
	return json.Marshal(LockInfo{Owner: l.ownerID, ExpiresAt: l.now().Add(l.ttl)})
}

// read returns the current lock body and ETag. A body that is not valid
// JSON yields a nil info, which callers treat as expired.
func (l *DistributedLock) read(ctx context.Context) (*LockInfo, string, error) {
	body, etag, err := l.store.Download(ctx, l.key)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read lock: %w", err)
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, etag, nil
	}
	return &info, etag, nil
}

func (l *DistributedLock) setETag(etag string) {
	l.mu.Lock()
	l.etag = etag
	l.mu.Unlock()
}

func (l *DistributedLock) getETag() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.etag
}
