package provider

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NonceStore persists the highest nonce handed out.
type NonceStore interface {
	Load() (int64, error)
	Save(nonce int64) error
}

// NonceSource strictly increasing request nonces: wall-clock millis, bumped past the last issued value.
type NonceSource struct {
	mu    sync.Mutex
	last  int64
	now   func() time.Time
	store NonceStore
	l     *zap.Logger
}

// NewNonceSource creates a source that resumes above the persisted high-water mark. store may be nil.
func NewNonceSource(store NonceStore, now func() time.Time, l *zap.Logger) (*NonceSource, error) {
	if now == nil {
		now = time.Now
	}

	s := &NonceSource{now: now, store: store, l: l}
	if store != nil {
		last, err := store.Load()
		if err != nil {
			return nil, errors.Wrap(err, "load nonce high-water mark")
		}
		s.last = last
	}

	return s, nil
}

// Next returns a nonce greater than every nonce returned before.
func (s *NonceSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.now().UnixMilli()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n

	if s.store != nil {
		if err := s.store.Save(n); err != nil {
			s.l.Warn("failed to persist nonce high-water mark", zap.Error(err))
		}
	}

	return n
}
