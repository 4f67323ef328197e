// Package badgerdb implements a persistent storage backend on BadgerDB,
// an embedded key-value store.
//
// It keeps the flat-key model of the other backends: one database entry
// per file, keyed by the slash-separated path relative to the root, with
// implicit directories and ".keep" markers for empty ones. Directory
// membership is answered with prefix scans over the LSM tree, which
// BadgerDB serves efficiently because keys are stored in sorted order.
//
// Value format: 8 bytes of big-endian Unix-nanosecond modification time
// followed by the file content. Keeping the timestamp inline avoids a
// second lookup per stat.
//
// Thread safety: BadgerDB transactions give each operation a consistent
// snapshot, so the backend is safe for concurrent use without extra
// locking. Conflicting writes to the same key are last-write-wins.
package badgerdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// prefixObject is the key prefix for file records.
const prefixObject = "o:"

// recordHeaderSize is the length of the fixed header preceding content.
const recordHeaderSize = 8

// BadgerBackend implements backend.Backend on an embedded BadgerDB.
type BadgerBackend struct {
	db *badger.DB
}

// BadgerBackendConfig contains configuration for the BadgerDB backend.
type BadgerBackendConfig struct {
	// DBPath is the directory where BadgerDB stores its files. It is
	// created if it does not exist.
	DBPath string `mapstructure:"db_path" validate:"required"`

	// BadgerOptions allows customization of BadgerDB behavior.
	// If nil, sensible defaults are used.
	BadgerOptions *badger.Options
}

// NewBadgerBackend opens (or creates) a BadgerDB database at the
// configured path and returns a backend over it.
func NewBadgerBackend(ctx context.Context, cfg BadgerBackendConfig) (*BadgerBackend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.BadgerOptions != nil {
		opts = *cfg.BadgerOptions
	} else {
		opts = badger.DefaultOptions(cfg.DBPath)
		opts = opts.WithLoggingLevel(badger.WARNING)
		// File payloads are stored verbatim; most transfer traffic is
		// already compressed formats, so skip the CPU cost.
		opts = opts.WithCompression(options.None)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &BadgerBackend{db: db}, nil
}

// Close flushes and closes the underlying database. The backend must
// not be used afterwards.
func (b *BadgerBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// objectKey returns the database key for a file path.
//
// Format: "o:<relative path>"
// Example: "o:docs/report.pdf"
func objectKey(path vpath.Path) []byte {
	return []byte(prefixObject + path.Key())
}

// childPrefix returns the key prefix under which the children of path
// live. For the root this is the bare object prefix.
func childPrefix(path vpath.Path) []byte {
	if path.IsRoot() {
		return []byte(prefixObject)
	}
	return []byte(prefixObject + path.Key() + "/")
}

// encodeRecord prepends the modification-time header to content.
func encodeRecord(modTime time.Time, content []byte) []byte {
	record := make([]byte, recordHeaderSize+len(content))
	binary.BigEndian.PutUint64(record, uint64(modTime.UnixNano()))
	copy(record[recordHeaderSize:], content)
	return record
}

// decodeRecord splits a record into modification time and content.
func decodeRecord(record []byte) (time.Time, []byte, error) {
	if len(record) < recordHeaderSize {
		return time.Time{}, nil, fmt.Errorf("corrupt record: %d bytes", len(record))
	}
	nanos := int64(binary.BigEndian.Uint64(record))
	return time.Unix(0, nanos), record[recordHeaderSize:], nil
}

// fileExistsTxn reports whether a file record lives at path.
func fileExistsTxn(txn *badger.Txn, path vpath.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}
	_, err := txn.Get(objectKey(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get: %w", err)
	}
	return true, nil
}

// dirExistsTxn reports whether any record lives under the directory
// prefix. The root always exists.
func dirExistsTxn(txn *badger.Txn, path vpath.Path) bool {
	if path.IsRoot() {
		return true
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = childPrefix(path)
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	return it.Valid()
}

func (b *BadgerBackend) ListDir(ctx context.Context, path vpath.Path) ([]backend.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := []backend.DirEntry{
		{Name: ".", Info: backend.DirectoryInfo(time.Time{})},
		{Name: "..", Info: backend.DirectoryInfo(time.Time{})},
	}

	err := b.db.View(func(txn *badger.Txn) error {
		if isFile, err := fileExistsTxn(txn, path); err != nil {
			return err
		} else if isFile {
			return backend.ErrNotADirectory
		}

		prefix := childPrefix(path)
		seenDirs := make(map[string]bool)
		found := false

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			found = true
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), string(prefix))

			if name, _, nested := strings.Cut(rest, "/"); nested {
				// A deeper record implies an immediate subdirectory.
				if !seenDirs[name] {
					seenDirs[name] = true
					entries = append(entries, backend.DirEntry{
						Name: name,
						Info: backend.DirectoryInfo(time.Time{}),
					})
				}
				continue
			}

			if rest == backend.KeepMarker {
				continue
			}
			record, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			modTime, content, err := decodeRecord(record)
			if err != nil {
				return err
			}
			entries = append(entries, backend.DirEntry{
				Name: rest,
				Info: backend.RegularInfo(uint64(len(content)), modTime),
			})
		}

		if !found && !path.IsRoot() {
			return backend.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries[2:], func(i, j int) bool {
		return entries[i+2].Name < entries[j+2].Name
	})
	return entries, nil
}

func (b *BadgerBackend) FileInfo(ctx context.Context, path vpath.Path) (backend.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return backend.FileInfo{}, err
	}
	if path.IsRoot() {
		return backend.DirectoryInfo(time.Time{}), nil
	}

	var info backend.FileInfo
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(path))
		if err == nil {
			record, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			modTime, content, err := decodeRecord(record)
			if err != nil {
				return err
			}
			info = backend.RegularInfo(uint64(len(content)), modTime)
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get: %w", err)
		}

		if dirExistsTxn(txn, path) {
			info = backend.DirectoryInfo(time.Time{})
			return nil
		}
		return backend.ErrNotFound
	})
	if err != nil {
		return backend.FileInfo{}, err
	}
	return info, nil
}

func (b *BadgerBackend) MakeDir(ctx context.Context, path vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if isFile, err := fileExistsTxn(txn, path); err != nil {
			return err
		} else if isFile {
			return backend.ErrAlreadyExists
		}
		if dirExistsTxn(txn, path) {
			return backend.ErrAlreadyExists
		}

		marker := append(childPrefix(path), backend.KeepMarker...)
		return txn.Set(marker, encodeRecord(time.Now(), nil))
	})
}

func (b *BadgerBackend) DelDir(ctx context.Context, path vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path.IsRoot() {
		return backend.ErrPermissionDenied
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if isFile, err := fileExistsTxn(txn, path); err != nil {
			return err
		} else if isFile {
			return backend.ErrNotADirectory
		}

		prefix := childPrefix(path)
		marker := string(prefix) + backend.KeepMarker
		found := false

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			found = true
			if string(it.Item().Key()) != marker {
				return backend.ErrNotEmpty
			}
		}
		if !found {
			return backend.ErrNotFound
		}

		return txn.Delete([]byte(marker))
	})
}

func (b *BadgerBackend) Delete(ctx context.Context, path vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if isFile, err := fileExistsTxn(txn, path); err != nil {
			return err
		} else if !isFile {
			if dirExistsTxn(txn, path) {
				return backend.ErrIsADirectory
			}
			return backend.ErrNotFound
		}
		return txn.Delete(objectKey(path))
	})
}

func (b *BadgerBackend) Rename(ctx context.Context, src, dst vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if occupied, err := fileExistsTxn(txn, dst); err != nil {
			return err
		} else if occupied {
			return backend.ErrAlreadyExists
		}
		if dirExistsTxn(txn, dst) {
			return backend.ErrAlreadyExists
		}

		// File rename: move the single record.
		if isFile, err := fileExistsTxn(txn, src); err != nil {
			return err
		} else if isFile {
			item, err := txn.Get(objectKey(src))
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}
			record, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			if err := txn.Set(objectKey(dst), record); err != nil {
				return err
			}
			return txn.Delete(objectKey(src))
		}

		// Directory rename: move every record under the prefix in the
		// same transaction, so the move is atomic.
		if !dirExistsTxn(txn, src) {
			return backend.ErrNotFound
		}

		srcPrefix, dstPrefix := childPrefix(src), childPrefix(dst)

		type move struct {
			oldKey, newKey []byte
			record         []byte
		}
		var moves []move

		opts := badger.DefaultIteratorOptions
		opts.Prefix = srcPrefix
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			oldKey := item.KeyCopy(nil)
			record, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return fmt.Errorf("read record: %w", err)
			}
			rest := strings.TrimPrefix(string(oldKey), string(srcPrefix))
			newKey := append(append([]byte{}, dstPrefix...), rest...)
			moves = append(moves, move{oldKey: oldKey, newKey: newKey, record: record})
		}
		it.Close()

		for _, m := range moves {
			if err := txn.Set(m.newKey, m.record); err != nil {
				return err
			}
			if err := txn.Delete(m.oldKey); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) ReadFile(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var content []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) || path.IsRoot() {
			if dirExistsTxn(txn, path) {
				return backend.ErrIsADirectory
			}
			return backend.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}

		record, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		_, content, err = decodeRecord(record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (b *BadgerBackend) WriteFile(ctx context.Context, path vpath.Path, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path.IsRoot() {
		return backend.ErrIsADirectory
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if dirExistsTxn(txn, path) {
			return backend.ErrIsADirectory
		}
		return txn.Set(objectKey(path), encodeRecord(time.Now(), data))
	})
}
