// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Chunk IDs are leased from badger this many at a time.
const idLeaseSize = 100

// Backend owns one badger database. Each session index gets its own.
type Backend struct {
	db     *badger.DB
	dir    string
	logger *slog.Logger
}

// OpenBackend opens the database stored in dir, creating the directory when
// missing. An empty dir opens a throwaway in-memory database.
func OpenBackend(dir string) (*Backend, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("index directory %s: %w", dir, err)
	}

	logger := slog.Default().With("component", "badger", "path", dir)
	opts = opts.WithLogger(slogAdapter{logger}).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db, dir: dir, logger: logger}, nil
}

// Path returns the database directory, or "" for an in-memory database.
func (b *Backend) Path() string {
	return b.dir
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// view runs fn in a read-only transaction.
func (b *Backend) view(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	return b.db.View(fn)
}

// update runs fn in a read-write transaction that commits when fn returns nil.
func (b *Backend) update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	return b.db.Update(fn)
}

// updateInBatches calls apply for items 0..n-1, committing and starting a new
// transaction whenever badger reports the current one full. The batches are
// not atomic as a whole; callers publish the result in a final update.
func (b *Backend) updateInBatches(ctx context.Context, n int, apply func(tx *badger.Txn, i int) error) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	tx := b.db.NewTransaction(true)
	defer func() { tx.Discard() }()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := apply(tx, i)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := tx.Commit(); err != nil {
				return err
			}
			tx = b.db.NewTransaction(true)
			err = apply(tx, i)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *Backend) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return errClosed
	}
	return nil
}

func (b *Backend) sequence(key string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(key), idLeaseSize)
}

// slogAdapter routes badger's logging through slog. Badger's info output is
// housekeeping, so it is logged at debug.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
