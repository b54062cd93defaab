// Package audit records dispatched commands in a pebble database for
// controllers to review. Nothing is ever replayed from it.
package audit

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const defaultQueueSize = 256

var ErrClosed = errors.New("audit: journal closed")

type Entry struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	Payload   string    `json:"payload,omitempty"`
	Delivered int       `json:"delivered"`
	Dropped   int       `json:"dropped"`
}

// Journal appends entries asynchronously. Keys are ULIDs so iteration order
// is chronological.
type Journal struct {
	db      *pebble.DB
	queue   chan Entry
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
	entropy io.Reader
}

// Open opens or creates the journal at dir.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	j := &Journal{
		db:      db,
		queue:   make(chan Entry, defaultQueueSize),
		done:    make(chan struct{}),
		entropy: &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(ulid.DefaultEntropy(), 0)},
	}
	go j.writer()
	return j, nil
}

// Append queues e without blocking. It reports false when the entry was
// dropped because the queue is full or the journal is closed.
func (j *Journal) Append(e Entry) bool {
	if j == nil {
		return false
	}
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()
	if j.closed {
		return false
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.ID = ulid.MustNew(ulid.Timestamp(e.At), j.entropy).String()
	select {
	case j.queue <- e:
		return true
	default:
		log.Warn().Str("kind", e.Kind).Msg("[audit] queue full; entry dropped")
		return false
	}
}

func (j *Journal) writer() {
	defer close(j.done)
	for e := range j.queue {
		if err := j.write(e); err != nil {
			log.Error().Err(err).Str("kind", e.Kind).Msg("[audit] write entry")
		}
	}
}

func (j *Journal) write(e Entry) error {
	id, err := ulid.ParseStrict(e.ID)
	if err != nil {
		return err
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return j.db.Set(id[:], val, pebble.NoSync)
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}
	it, err := j.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	out := make([]Entry, 0, max(limit, 0))
	for it.Last(); it.Valid(); it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close drains queued entries and closes the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.closeMu.Lock()
	if j.closed {
		j.closeMu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.closeMu.Unlock()

	<-j.done
	return j.db.Close()
}
