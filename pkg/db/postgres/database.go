// Package postgres is the job queue database on PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	kpgjob "github.com/whole-tale/gwvolman/pkg/db/postgres/job"
	kpool "github.com/whole-tale/gwvolman/pkg/db/postgres/pool"
	kpgschema "github.com/whole-tale/gwvolman/pkg/db/postgres/schema"
	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

type Database interface {
	Job() jobdb.Interface
	Schema() kpgschema.Schema
	Ping(ctx context.Context) error
	Close() error
}

type pgDatabase struct {
	pool   kpool.Pool
	job    jobdb.Interface
	schema kpgschema.Schema
}

type Config struct {
	SchemaRepository string
}

type Option func(*Config) *Config

// WithSchemaRepository enables schema upgrade and watching with the repository.
func WithSchemaRepository(repository string) Option {
	return func(c *Config) *Config {
		c.SchemaRepository = repository
		return c
	}
}

func New(ctx context.Context, url string, options ...Option) (Database, error) {
	c := &Config{}
	for _, o := range options {
		c = o(c)
	}

	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return Attach(kpool.Wrap(pool), c), nil
}

// Attach builds a Database over the pool.
func Attach(p kpool.Pool, c *Config) Database {
	schema := kpgschema.Null()
	if c != nil && c.SchemaRepository != "" {
		schema = kpgschema.New(p, c.SchemaRepository)
	}
	return &pgDatabase{
		pool:   p,
		job:    kpgjob.New(p),
		schema: schema,
	}
}

func (d *pgDatabase) Job() jobdb.Interface {
	return d.job
}

func (d *pgDatabase) Schema() kpgschema.Schema {
	return d.schema
}

func (d *pgDatabase) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *pgDatabase) Close() error {
	d.pool.Close()
	return nil
}
