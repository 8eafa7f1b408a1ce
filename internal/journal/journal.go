// Package journal keeps a durable local record of every completed
// reconciliation cycle. The roster status column is the operator-facing
// signal; the journal is what survives locally when the store is
// unreachable.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/okorotkov/fleetsync/internal/domain"
)

const (
	defaultDir   = "./wal/cycles"
	segmentLimit = 100
	maxSegments  = 10

	cycleKeyPrefix = "cycle_"
)

// CycleRecord is the outcome of one account processing cycle.
type CycleRecord struct {
	ID        string               `json:"id"`
	Login     int64                `json:"login"`
	Server    string               `json:"server"`
	Status    domain.AccountStatus `json:"status"`
	Attempts  int                  `json:"attempts"`
	Published bool                 `json:"published"`
	Rows      int                  `json:"rows,omitempty"`
	Error     string               `json:"error,omitempty"`
	Time      time.Time            `json:"time"`
}

// Journal persists cycle records in a WAL.
type Journal struct {
	wal *gowal.Wal
	mu  sync.Mutex
}

// Open initializes the WAL-backed journal in dir.
func Open(dir string) (*Journal, error) {
	if dir == "" {
		dir = defaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "cycle_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init cycle journal WAL")
	}

	return &Journal{wal: wal}, nil
}

// Append writes the record, assigning it an ID and timestamp when absent.
func (j *Journal) Append(rec CycleRecord) error {
	if j == nil || j.wal == nil {
		return errors.New("cycle journal is not initialized")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal cycle record")
	}

	key := fmt.Sprintf("%s%d_%s", cycleKeyPrefix, rec.Login, rec.ID)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// Records replays every cycle record in write order.
func (j *Journal) Records() ([]CycleRecord, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("cycle journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var out []CycleRecord
	for msg := range j.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, cycleKeyPrefix) {
			continue
		}
		var rec CycleRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode cycle record %s", msg.Key)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("cycle journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
