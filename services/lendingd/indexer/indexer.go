package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"remitlend/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// EventRecord is one committed ledger event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex" json:"sequence"`
	Type       string    `gorm:"index;not null" json:"type"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Event is the API view of a stored record.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Open connects to the index database.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case DriverPostgres:
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
}

// AutoMigrate performs the schema migrations for the index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}

// Indexer persists committed events so they can be queried after the fact.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// New migrates db and resumes numbering after the last stored event.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last EventRecord
	res := db.Order("sequence desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", res.Error)
	}
	return &Indexer{db: db, logger: log, clock: time.Now, seq: last.Sequence}, nil
}

// Emit implements events.Emitter. Storage failures are logged; the ledger
// has already committed by the time events arrive here.
func (i *Indexer) Emit(e events.Event) {
	if i == nil || e == nil {
		return
	}
	evt := e.Event()
	attrs := map[string]string{}
	if evt != nil && evt.Attributes != nil {
		attrs = evt.Attributes
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		i.logger.Error("indexer: encode event", slog.String("type", e.EventType()), slog.Any("error", err))
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   i.seq + 1,
		Type:       e.EventType(),
		Attributes: string(encoded),
		CreatedAt:  i.clock().UTC(),
	}
	if err := i.db.Create(&record).Error; err != nil {
		i.logger.Error("indexer: store event", slog.String("type", record.Type), slog.Any("error", err))
		return
	}
	i.seq = record.Sequence
}

// List returns the most recent events, newest first, optionally filtered by
// type.
func (i *Indexer) List(ctx context.Context, kind string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := i.db.WithContext(ctx).Order("sequence desc").Limit(limit)
	if kind = strings.TrimSpace(kind); kind != "" {
		query = query.Where("type = ?", kind)
	}
	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(records))
	for _, record := range records {
		attrs := map[string]string{}
		if record.Attributes != "" {
			if err := json.Unmarshal([]byte(record.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("indexer: decode event %d: %w", record.Sequence, err)
			}
		}
		out = append(out, Event{
			ID:         record.ID,
			Sequence:   record.Sequence,
			Type:       record.Type,
			Attributes: attrs,
			CreatedAt:  record.CreatedAt,
		})
	}
	return out, nil
}
