package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Reader exposes point lookups against a key-value store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Writer exposes point mutations against a key-value store.
type Writer interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// KV is the combined read/write view handed to the state layer. Both the
// database itself and an open transaction satisfy it.
type KV interface {
	Reader
	Writer
}

// Txn is a staged set of writes that is either committed as a whole or
// discarded. Reads observe the transaction's own pending writes.
type Txn interface {
	KV
	Commit() error
	Discard()
}

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
type Database interface {
	KV
	Begin() (Txn, error)
	Close() // A way to gracefully shut down the database connection.
}

// LevelDB is a key-value store using LevelDB. It backs both the persistent
// node database and the in-memory database used by tests.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// NewMemDB opens a LevelDB instance over volatile in-memory storage.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		// Opening memory storage only fails on programmer error.
		panic(fmt.Sprintf("storage: open memory db: %v", err))
	}
	return &LevelDB{db: db}
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether the key is present.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Delete removes the key. Deleting an absent key is not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// Begin opens a LevelDB transaction. Only one transaction may be open at a
// time; writes to the database block until it is committed or discarded.
func (ldb *LevelDB) Begin() (Txn, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("storage: open transaction: %w", err)
	}
	return &levelTxn{tr: tr}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelTxn struct {
	tr *leveldb.Transaction
}

func (t *levelTxn) Get(key []byte) ([]byte, error) {
	value, err := t.tr.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (t *levelTxn) Has(key []byte) (bool, error) {
	return t.tr.Has(key, nil)
}

func (t *levelTxn) Put(key []byte, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *levelTxn) Delete(key []byte) error {
	return t.tr.Delete(key, nil)
}

func (t *levelTxn) Commit() error {
	return t.tr.Commit()
}

func (t *levelTxn) Discard() {
	t.tr.Discard()
}
