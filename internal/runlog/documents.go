package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cpgcore/internal/infra/persistence/postgres"
	"cpgcore/internal/infra/persistence/sqlite"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the ledger backend.
type Config struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// documentBackend stores opaque run documents keyed by id.
type documentBackend interface {
	Put(ctx context.Context, id string, startedAt time.Time, payload []byte) error
	Get(ctx context.Context, id string) ([]byte, bool, error)
	List(ctx context.Context) ([][]byte, error)
	Close() error
}

// DocumentStore adapts a document backend to Store by encoding records as JSON.
type DocumentStore struct {
	backend documentBackend
	driver  string
}

// Open returns the Store selected by cfg. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		backend, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &DocumentStore{backend: backend, driver: DriverSQLite}, nil
	case DriverPostgres:
		backend, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &DocumentStore{backend: backend, driver: DriverPostgres}, nil
	default:
		return nil, fmt.Errorf("unsupported run store driver %q", cfg.Driver)
	}
}

// Driver names the backend in use.
func (s *DocumentStore) Driver() string { return s.driver }

// Save implements Store.
func (s *DocumentStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("save run: id required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rec.ID, err)
	}
	return s.backend.Put(ctx, rec.ID, rec.StartedAt, payload)
}

// Get implements Store.
func (s *DocumentStore) Get(ctx context.Context, id string) (Record, error) {
	payload, found, err := s.backend.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decode(payload)
}

// List implements Store.
func (s *DocumentStore) List(ctx context.Context) ([]Record, error) {
	payloads, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(payloads))
	for _, payload := range payloads {
		rec, err := decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// Close implements Store.
func (s *DocumentStore) Close() error { return s.backend.Close() }

func decode(payload []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode run: %w", err)
	}
	return rec, nil
}
