package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"cookiejar/core/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS jar_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    member TEXT NOT NULL DEFAULT '',
    attributes TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS jar_events_member ON jar_events(member, recorded_at);
`

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("indexer: database path must be configured")

// Record is an indexed event row.
type Record struct {
	ID         string
	Type       string
	Member     string
	Attributes map[string]string
	RecordedAt time.Time
}

type entry struct {
	id   string
	evt  events.Event
	when time.Time
}

// Indexer persists jar events to SQL for external consumers. Emit only
// enqueues; a background worker performs the writes so a slow or failing
// database never blocks or fails a claim.
type Indexer struct {
	db      *sql.DB
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Option customises the indexer.
type Option func(*Indexer)

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(i *Indexer) { i.logger = l }
}

// WithQueueSize sets the buffered event capacity.
func WithQueueSize(n int) Option {
	return func(i *Indexer) {
		if n > 0 {
			i.queue = make(chan entry, n)
		}
	}
}

// WithClock sets the function used for recorded_at.
func WithClock(clock func() time.Time) Option {
	return func(i *Indexer) { i.now = clock }
}

// Open initialises a sqlite-backed indexer at path and applies the schema.
func Open(path string, opts ...Option) (*Indexer, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing database whose schema is already in place and starts
// the writer.
func New(db *sql.DB, opts ...Option) *Indexer {
	idx := &Indexer{
		db:      db,
		logger:  slog.Default(),
		now:     time.Now,
		timeout: 5 * time.Second,
		queue:   make(chan entry, 1024),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}
	idx.logger = idx.logger.With(slog.String("component", "indexer"))
	go idx.run()
	return idx
}

// Emit implements events.Emitter. Events arriving while the queue is full or
// after Close are dropped and counted.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		i.dropped.Add(1)
		return
	}
	select {
	case i.queue <- entry{id: uuid.NewString(), evt: evt, when: i.now()}:
	default:
		i.dropped.Add(1)
		i.logger.Warn("event queue full, dropping event", slog.String("type", evt.EventType()))
	}
}

func (i *Indexer) run() {
	defer close(i.done)
	for e := range i.queue {
		ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
		err := i.write(ctx, e)
		cancel()
		if err != nil {
			i.failed.Add(1)
			i.logger.Error("index event failed",
				slog.String("type", e.evt.EventType()),
				slog.String("error", err.Error()),
			)
			continue
		}
		i.written.Add(1)
	}
}

func (i *Indexer) write(ctx context.Context, e entry) error {
	rendered := e.evt.Event()
	if rendered == nil {
		return fmt.Errorf("event %s rendered nil", e.evt.EventType())
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = i.db.ExecContext(ctx, `
        INSERT INTO jar_events(id, type, member, attributes, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, e.id, rendered.Type, rendered.Attributes["member"], string(attrs), e.when.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// History returns the most recent indexed events for member, newest first.
func (i *Indexer) History(ctx context.Context, member common.Address, limit int) ([]Record, error) {
	if i == nil || i.db == nil {
		return nil, fmt.Errorf("indexer not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := i.db.QueryContext(ctx, `
        SELECT id, type, member, attributes, recorded_at
        FROM jar_events
        WHERE member = ?
        ORDER BY recorded_at DESC, rowid DESC
        LIMIT ?
    `, strings.ToLower(member.Hex()), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec      Record
			rawAttrs string
			recorded int64
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Member, &rawAttrs, &recorded); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(rawAttrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		rec.RecordedAt = time.Unix(recorded, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats reports written, failed and dropped event counts.
func (i *Indexer) Stats() (written, failed, dropped int64) {
	return i.written.Load(), i.failed.Load(), i.dropped.Load()
}

// Close stops accepting events, drains the queue and releases the database.
func (i *Indexer) Close() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	close(i.queue)
	i.mu.Unlock()
	<-i.done
	return i.db.Close()
}
