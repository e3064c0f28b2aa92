// Package nonces keeps the HMAC request nonce high-water mark across restarts.
// Only the nonce integer is written; balances never reach this store.
package nonces

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultNonceDir   = "./wal/nonce"
	nonceSegmentLimit = 1000
	nonceMaxSegments  = 5
	nonceKey          = "hmac_nonce"
)

type nonceLog interface {
	Get(index uint64) (string, []byte, error)
	CurrentIndex() uint64
	Write(index uint64, key string, value []byte) error
	Close() error
}

// WALStore persists the last issued nonce in a WAL.
type WALStore struct {
	wal nonceLog
	mu  sync.Mutex
}

// NewWALStore opens or creates the nonce WAL under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultNonceDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "nonce_",
		SegmentThreshold: nonceSegmentLimit,
		MaxSegments:      nonceMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init nonce WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Load returns the most recently saved nonce, or 0 for an empty log.
func (s *WALStore) Load() (int64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("nonce store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return 0, errors.Wrapf(err, "read nonce at index %d", idx)
		}
		if key != nonceKey || len(payload) == 0 {
			continue
		}

		nonce, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "decode nonce at index %d", idx)
		}
		return nonce, nil
	}

	return 0, nil
}

// Save appends nonce as the new high-water mark.
func (s *WALStore) Save(nonce int64) error {
	if s == nil || s.wal == nil {
		return errors.New("nonce store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, nonceKey, []byte(strconv.FormatInt(nonce, 10)))
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("nonce store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
