// Package journal keeps an append-only record of fetch outcomes: which
// account and view was read, whether the terminal synchronized in time and
// how the request failed, if it did.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	_maxPending   = 1024
	_flushTimeout = 5 * time.Second
)

type Entry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RequestID     string    `db:"request_id" json:"requestId"`
	Provider      string    `db:"provider" json:"provider"`
	AccountID     string    `db:"account_id" json:"accountId"`
	View          string    `db:"view_kind" json:"view"`
	Synchronized  bool      `db:"synchronized" json:"synchronized"`
	Degraded      bool      `db:"degraded" json:"degraded"`
	SyncElapsedMs int64     `db:"sync_elapsed_ms" json:"syncElapsedMs"`
	ErrorKind     string    `db:"error_kind" json:"errorKind,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// NewEntry describes one finished fetch. accountID is the requested id; the
// resolved one from res wins when the fetch got that far.
func NewEntry(provider, requestID, accountID string, view model.View, res *fetcher.Result, err error) Entry {
	e := Entry{
		ID:        uuid.New(),
		RequestID: requestID,
		Provider:  provider,
		AccountID: accountID,
		View:      string(view.Kind),
		ErrorKind: fetcher.Kind(err),
		CreatedAt: time.Now().UTC(),
	}
	if res != nil {
		e.AccountID = res.AccountID
		e.Synchronized = res.Synchronized
		e.Degraded = res.Degraded
		e.SyncElapsedMs = res.SyncElapsed.Milliseconds()
	}
	return e
}

// Journal buffers entries in memory and writes them in batches so that
// recording never blocks a request on the database.
type Journal struct {
	db     *sqlx.DB
	logger logger.Logger

	flushInterval time.Duration

	mu      sync.Mutex
	pending []Entry
	dropped int
}

func New(db *sqlx.DB, flushInterval time.Duration, logger logger.Logger) *Journal {
	return &Journal{
		db:            db,
		logger:        logger,
		flushInterval: flushInterval,
		pending:       make([]Entry, 0, 64),
	}
}

// Record queues e. When the buffer is full the oldest entry is dropped.
func (j *Journal) Record(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.pending) >= _maxPending {
		j.pending = j.pending[1:]
		j.dropped++
	}
	j.pending = append(j.pending, e)
}

func (j *Journal) takePending() ([]Entry, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	batch, dropped := j.pending, j.dropped
	j.pending = make([]Entry, 0, cap(batch))
	j.dropped = 0
	return batch, dropped
}

// Flush writes every queued entry. Entries of a failed batch are lost.
func (j *Journal) Flush(ctx context.Context) error {
	batch, dropped := j.takePending()
	if dropped > 0 {
		j.logger.Warnf("journal buffer overflow, dropped %d entries", dropped)
	}
	if len(batch) == 0 {
		return nil
	}
	if _, err := j.db.NamedExecContext(ctx, _insertEntries, batch); err != nil {
		return fmt.Errorf("%w: can't insert %d journal entries", err, len(batch))
	}
	return nil
}

// Run flushes every flush interval until ctx is done, then once more.
func (j *Journal) Run(ctx context.Context) {
	t := time.NewTicker(j.flushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), _flushTimeout)
			if err := j.Flush(flushCtx); err != nil {
				j.logger.Errorf("%s: error flushing journal on shutdown", err)
			}
			cancel()
			return
		case <-t.C:
			if err := j.Flush(ctx); err != nil {
				j.logger.Errorf("%s: error flushing journal", err)
			}
		}
	}
}

// Recent returns up to limit latest entries, newest first. An empty
// accountID means every account.
func (j *Journal) Recent(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	var (
		entries []Entry
		err     error
	)
	if accountID == "" {
		err = j.db.SelectContext(ctx, &entries, j.db.Rebind(_queryRecent), limit)
	} else {
		err = j.db.SelectContext(ctx, &entries, j.db.Rebind(_queryRecentByAccount), accountID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: can't query journal", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
