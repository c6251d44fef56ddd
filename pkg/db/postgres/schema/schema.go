// Package schema upgrades the database schema from a schema repository.
//
// A schema repository is a directory containing directories named by
// version numbers. Each of them has .sql files applied in lexical order.
//
//	schema/
//	  1/
//	    job.sql
//	  2/
//	    ...
package schema

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/whole-tale/gwvolman/pkg/db/postgres/pool"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

type Schema interface {
	// Version returns the schema version of the database. 0 means "not initialized".
	Version(ctx context.Context) (int, error)

	// Upgrade applies versions newer than the database's.
	Upgrade(ctx context.Context) error

	// Context returns a context cancelled when the schema repository gets
	// a version newer than the database's.
	Context(ctx context.Context) (context.Context, context.CancelFunc)
}

type pgSchema struct {
	pool       kpool.Pool
	repository string
}

func New(pool kpool.Pool, repository string) Schema {
	return &pgSchema{pool: pool, repository: repository}
}

type version struct {
	number int
	files  fs.FS
}

func (v version) apply(ctx context.Context, q kpool.Queryer) error {
	return fs.WalkDir(v.files, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		query, err := fs.ReadFile(v.files, path)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, string(query)); err != nil {
			return fmt.Errorf("version %d, %s: %w", v.number, path, err)
		}
		return nil
	})
}

func (s *pgSchema) Version(ctx context.Context) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return -1, xe.Wrap(err)
	}
	defer conn.Release()
	return currentVersion(ctx, conn)
}

func currentVersion(ctx context.Context, q kpool.Queryer) (int, error) {
	var v *int
	err := q.QueryRow(ctx, `select max("version") from "schema_version"`).Scan(&v)
	if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UndefinedTable {
		return 0, nil
	} else if err != nil {
		return -1, xe.Wrap(err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

func (s *pgSchema) Upgrade(ctx context.Context) error {
	versions, err := s.versions()
	if err != nil {
		return err
	}

	current, err := s.Version(ctx)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	for _, v := range versions {
		if v.number <= current {
			continue
		}
		if err := v.apply(ctx, tx); err != nil {
			return xe.Wrap(err)
		}
		if _, err := tx.Exec(ctx, `delete from "schema_version"`); err != nil {
			return xe.Wrap(err)
		}
		if _, err := tx.Exec(
			ctx, `insert into "schema_version" ("version") values ($1)`, v.number,
		); err != nil {
			return xe.Wrap(err)
		}
	}

	return xe.Wrap(tx.Commit(ctx))
}

func (s *pgSchema) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cancel(err)
		return cctx, func() {}
	}
	if err := w.Add(s.repository); err != nil {
		w.Close()
		cancel(err)
		return cctx, func() {}
	}

	check := func() {
		versions, err := s.versions()
		if err != nil {
			cancel(fmt.Errorf("cannot read schema repository: %w", err))
			return
		}
		current, err := s.Version(cctx)
		if err != nil {
			cancel(fmt.Errorf("cannot get schema version: %w", err))
			return
		}
		if len(versions) != 0 {
			if latest := versions[len(versions)-1].number; current < latest {
				cancel(fmt.Errorf("schema is outdated: %d (database) < %d (repository)", current, latest))
			}
		}
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) {
					check()
				}
			}
		}
	}()

	check()
	return cctx, func() { cancel(nil) }
}

// versions reads the schema repository, sorted by version number.
func (s *pgSchema) versions() ([]version, error) {
	entries, err := os.ReadDir(s.repository)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	versions := make([]version, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		versions = append(versions, version{
			number: n,
			files:  os.DirFS(filepath.Join(s.repository, e.Name())),
		})
	}
	slices.SortFunc(versions, func(a, b version) int { return cmp.Compare(a.number, b.number) })
	return versions, nil
}

// Null is a Schema without repository.
//
// It never upgrades.
func Null() Schema {
	return nullSchema{}
}

type nullSchema struct{}

func (nullSchema) Version(context.Context) (int, error) {
	return -1, nil
}

func (nullSchema) Upgrade(context.Context) error {
	return errors.New("no schema repository available")
}

func (nullSchema) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	return ctx, func() {}
}
