package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flashbots/noisyagg/metrics"
	"github.com/flashbots/noisyagg/protocol"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// StoredEvent is a ledger event as persisted in the audit trail.
type StoredEvent struct {
	ID  uuid.UUID `json:"id"`
	Seq uint64    `json:"seq"`
	protocol.Event
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	BatchID   protocol.BatchID
	RequestID protocol.RequestID
	Kind      protocol.EventKind
	Limit     int
}

func (f EventFilter) match(e *protocol.Event) bool {
	if f.BatchID != 0 && e.BatchID != f.BatchID {
		return false
	}
	if f.RequestID != 0 && e.RequestID != f.RequestID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}

// EventStore persists ledger events and serves them back in emission order.
type EventStore interface {
	protocol.EventSink
	Events(ctx context.Context, filter EventFilter) ([]*StoredEvent, error)
}

// PostgresEventStore implements EventStore with PostgreSQL persistence.
type PostgresEventStore struct {
	db  *sql.DB
	log *slog.Logger
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresEventStore connects to PostgreSQL and creates the events table.
func NewPostgresEventStore(config *PostgresConfig, log *slog.Logger) (*PostgresEventStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresEventStore{db: db, log: log}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresEventStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_events (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		kind VARCHAR(64) NOT NULL,
		batch_id BIGINT NOT NULL DEFAULT 0,
		request_id BIGINT NOT NULL DEFAULT 0,
		actor VARCHAR(128) NOT NULL DEFAULT '',
		payload JSONB NOT NULL,
		emitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_events_batch ON ledger_events(batch_id);
	CREATE INDEX IF NOT EXISTS idx_events_request ON ledger_events(request_id);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Emit writes e. The ledger cannot act on a failed write, so failures are
// logged and counted.
func (s *PostgresEventStore) Emit(e protocol.Event) {
	err := s.save(e)
	metrics.RecordEventWrite(err)
	if err != nil {
		s.log.Error("persisting ledger event failed", "kind", e.Kind, "batchID", e.BatchID, "err", err)
	}
}

func (s *PostgresEventStore) save(e protocol.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	query := `
	INSERT INTO ledger_events (id, kind, batch_id, request_id, actor, payload, emitted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		string(e.Kind),
		int64(e.BatchID),
		int64(e.RequestID),
		e.Actor,
		payload,
		e.Time,
	)
	return err
}

// Zero ids and an empty kind match everything. The parameters are cast so
// postgres does not infer int4 from the literal zero.
const selectEventsSQL = `
	SELECT seq, id, payload FROM ledger_events
	WHERE ($1::BIGINT = 0 OR batch_id = $1::BIGINT)
	  AND ($2::BIGINT = 0 OR request_id = $2::BIGINT)
	  AND ($3::TEXT = '' OR kind = $3::TEXT)
	ORDER BY seq
`

func eventsQuery(filter EventFilter) (string, []any) {
	query := selectEventsSQL
	args := []any{int64(filter.BatchID), int64(filter.RequestID), string(filter.Kind)}
	if filter.Limit > 0 {
		query += "LIMIT $4"
		args = append(args, filter.Limit)
	}
	return query, args
}

// Events returns the stored events matching filter in emission order.
func (s *PostgresEventStore) Events(ctx context.Context, filter EventFilter) ([]*StoredEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query, args := eventsQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*StoredEvent
	for rows.Next() {
		var (
			seq     int64
			id      uuid.UUID
			payload []byte
		)
		if err := rows.Scan(&seq, &id, &payload); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		stored := &StoredEvent{ID: id, Seq: uint64(seq)}
		if err := json.Unmarshal(payload, &stored.Event); err != nil {
			return nil, fmt.Errorf("decoding event %s: %w", id, err)
		}
		result = append(result, stored)
	}

	return result, rows.Err()
}

// Close closes the database connection.
func (s *PostgresEventStore) Close() error {
	return s.db.Close()
}

// InMemoryEventStore implements EventStore without a database.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*StoredEvent
}

// NewInMemoryEventStore creates an empty in-memory store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

// Emit appends e.
func (s *InMemoryEventStore) Emit(e protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, &StoredEvent{
		ID:    uuid.New(),
		Seq:   uint64(len(s.events) + 1),
		Event: e,
	})
	metrics.RecordEventWrite(nil)
}

// Events returns the stored events matching filter in emission order.
func (s *InMemoryEventStore) Events(_ context.Context, filter EventFilter) ([]*StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*StoredEvent
	for _, e := range s.events {
		if !filter.match(&e.Event) {
			continue
		}
		copied := *e
		result = append(result, &copied)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}
