package state

import (
	"errors"
	"fmt"
	"sort"

	"remitlend/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

// Tx stages writes on top of a database. Reads see the staged values first.
// Nothing reaches the database until Commit, which writes every staged key in
// one batch.
type Tx struct {
	db      storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

// NewTx opens a staging transaction over db.
func NewTx(db storage.Database) *Tx {
	return &Tx{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get returns the staged or stored value, nil when absent.
func (t *Tx) Get(key []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	k := string(key)
	if v, ok := t.writes[k]; ok {
		return append([]byte(nil), v...), nil
	}
	if _, ok := t.deletes[k]; ok {
		return nil, nil
	}
	data, err := t.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read: %w", err)
	}
	return data, nil
}

// Put stages value under key.
func (t *Tx) Put(key, value []byte) error {
	if t.closed {
		return ErrTxClosed
	}
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

// Delete stages removal of key.
func (t *Tx) Delete(key []byte) error {
	if t.closed {
		return ErrTxClosed
	}
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

// Dirty reports the number of staged keys.
func (t *Tx) Dirty() int {
	return len(t.writes) + len(t.deletes)
}

// Commit writes the staged changes atomically and closes the transaction.
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	if t.Dirty() == 0 {
		return nil
	}
	batch := storage.NewBatch()
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), t.writes[k])
	}
	dels := make([]string, 0, len(t.deletes))
	for k := range t.deletes {
		dels = append(dels, k)
	}
	sort.Strings(dels)
	for _, k := range dels {
		batch.Delete([]byte(k))
	}
	if err := t.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops every staged change.
func (t *Tx) Discard() {
	t.closed = true
	t.writes = nil
	t.deletes = nil
}
