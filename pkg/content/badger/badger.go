// Package badger implements a ContentStore on top of an embedded BadgerDB.
//
// Each resource is one key/value pair: the key is the ContentID (root +
// request path) and the value is the full file body. This suits small static
// sites that should ship as a single data directory.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/content"
)

// BadgerContentStore serves content stored in BadgerDB.
//
// Thread Safety:
// Safe for concurrent use. Reads run in read-only transactions and writes in
// update transactions; BadgerDB provides snapshot isolation between them.
type BadgerContentStore struct {
	db       *badgerdb.DB
	readOnly bool
}

// BadgerContentStoreConfig contains configuration for the badger content store.
type BadgerContentStoreConfig struct {
	// DBPath is the data directory. Ignored when InMemory is set.
	DBPath string

	// InMemory keeps everything in RAM. Content is lost on Close.
	InMemory bool

	// ReadOnly opens an existing database without write access.
	ReadOnly bool

	// BlockCacheSizeMB sizes the block cache (default: 64MB).
	BlockCacheSizeMB int64
}

// NewBadgerContentStore opens (or creates) the database.
func NewBadgerContentStore(ctx context.Context, config BadgerContentStoreConfig) (*BadgerContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	if config.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger db_path is required")
		}
		opts = badgerdb.DefaultOptions(config.DBPath).WithReadOnly(config.ReadOnly)
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}

	opts = opts.
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badgerdb.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerContentStore{db: db, readOnly: config.ReadOnly && !config.InMemory}, nil
}

// ReadContent returns the stored body. The value is copied out of the
// transaction, so the reader stays valid after it ends.
func (s *BadgerContentStore) ReadContent(ctx context.Context, id content.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := s.get(txn, id)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// GetContentSize returns the length of the stored value.
func (s *BadgerContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var size uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := s.get(txn, id)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			size = uint64(len(val))
			return nil
		})
	})
	return size, err
}

// ContentExists reports whether id has a value.
func (s *BadgerContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := s.get(txn, id)
		return err
	})
	if errors.Is(err, content.ErrContentNotFound) {
		return false, nil
	}
	return err == nil, err
}

// WriteContent stores data under id, replacing any previous value.
func (s *BadgerContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.readOnly {
		return content.ErrReadOnly
	}
	if id == "" {
		return content.ErrInvalidContentID
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write content %s: %w", id, err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerContentStore) Close() error {
	return s.db.Close()
}

func (s *BadgerContentStore) get(txn *badgerdb.Txn, id content.ContentID) (*badgerdb.Item, error) {
	if id == "" {
		return nil, fmt.Errorf("content %q: %w", id, content.ErrContentNotFound)
	}

	item, err := txn.Get([]byte(id))
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get content %s: %w", id, err)
	}
	return item, nil
}

// badgerLogger routes BadgerDB's internal messages through the server logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any)   { logger.Error("badger: "+format, args...) }
func (badgerLogger) Warningf(format string, args ...any) { logger.Warn("badger: "+format, args...) }
func (badgerLogger) Infof(format string, args ...any)    { logger.Info("badger: "+format, args...) }
func (badgerLogger) Debugf(format string, args ...any)   { logger.Debug("badger: "+format, args...) }
