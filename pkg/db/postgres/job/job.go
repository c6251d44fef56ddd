package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kpool "github.com/whole-tale/gwvolman/pkg/db/postgres/pool"
	"github.com/whole-tale/gwvolman/pkg/domain/job"
	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

type pgJob struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) jobdb.Interface {
	return &pgJob{pool: pool}
}

// Missing tells the job is not in the table.
type Missing struct {
	ID string
}

func (m Missing) Error() string {
	return fmt.Sprintf("job %s is not found", m.ID)
}

func (m Missing) Unwrap() error {
	return job.ErrMissing
}

const columns = `"job_id", "task", "args", "girder_token", "girder_job_id", "then",
	"status", "cancel_requested", "worker", "result", "message",
	"created_at", "updated_at"`

func scan(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string
	var args, result pgtype.JSONB
	if err := row.Scan(
		&j.ID, &j.Task, &args, &j.GirderToken, &j.GirderJobID, &j.Then,
		&status, &j.CancelRequested, &j.Worker, &result, &j.Message,
		&j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return job.Job{}, err
	}
	j.Status = job.Status(status)
	if args.Status == pgtype.Present {
		j.Args = json.RawMessage(args.Bytes)
	}
	if result.Status == pgtype.Present {
		j.Result = json.RawMessage(result.Bytes)
	}
	return j, nil
}

func scanAll(rows pgx.Rows) ([]job.Job, error) {
	defer rows.Close()
	ret := []job.Job{}
	for rows.Next() {
		j, err := scan(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (p *pgJob) Enqueue(ctx context.Context, spec job.Spec) (job.Job, error) {
	if spec.Task == "" {
		return job.Job{}, xe.New("task is required")
	}
	args := []byte(spec.Args)
	if len(args) == 0 || string(args) == "null" {
		args = []byte("{}")
	}
	if !json.Valid(args) {
		return job.Job{}, xe.New("args should be JSON")
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	defer conn.Release()

	j, err := scan(conn.QueryRow(
		ctx,
		`
		insert into "job" ("job_id", "task", "args", "girder_token", "girder_job_id", "then")
		values ($1, $2, $3, $4, $5, $6)
		returning `+columns,
		uuid.NewString(), spec.Task, pgtype.JSONB{Bytes: args, Status: pgtype.Present}, spec.GirderToken, spec.GirderJobID, spec.Then,
	))
	if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	return j, nil
}

func (p *pgJob) Get(ctx context.Context, id string) (job.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return job.Job{}, Missing{ID: id}
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	defer conn.Release()

	j, err := scan(conn.QueryRow(
		ctx, `select `+columns+` from "job" where "job_id" = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return job.Job{}, Missing{ID: id}
	} else if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	return j, nil
}

func (p *pgJob) Find(ctx context.Context, query job.Query) ([]job.Job, error) {
	where := []string{}
	params := []any{}
	if len(query.Status) != 0 {
		st := make([]string, len(query.Status))
		for i, s := range query.Status {
			st[i] = string(s)
		}
		params = append(params, st)
		where = append(where, fmt.Sprintf(`"status"::text = any($%d)`, len(params)))
	}
	if len(query.Task) != 0 {
		params = append(params, query.Task)
		where = append(where, fmt.Sprintf(`"task" = any($%d)`, len(params)))
	}

	sql := `select ` + columns + ` from "job"`
	if len(where) != 0 {
		sql += ` where ` + strings.Join(where, " and ")
	}
	sql += ` order by "created_at", "job_id"`

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, params...)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	ret, err := scanAll(rows)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return ret, nil
}

func (p *pgJob) Claim(ctx context.Context, tasks []string, worker string) (*job.Job, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	j, err := scan(tx.QueryRow(
		ctx,
		`
		with "next" as (
			select "job_id" from "job"
			where "status" = 'queued' and "task" = any($1)
			order by "created_at", "job_id"
			limit 1
			for update skip locked
		)
		update "job"
		set "status" = 'running', "worker" = $2, "updated_at" = now()
		where "job_id" in (select "job_id" from "next")
		returning `+columns,
		tasks, worker,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, xe.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, xe.Wrap(err)
	}
	return &j, nil
}

func (p *pgJob) Finish(ctx context.Context, id string, outcome job.Outcome) (job.Job, error) {
	if !outcome.Status.Finished() {
		return job.Job{}, xe.Errorf("%s is not a status to finish with", outcome.Status)
	}
	result := pgtype.JSONB{Status: pgtype.Null}
	if len(outcome.Result) != 0 {
		if !json.Valid(outcome.Result) {
			return job.Job{}, xe.New("result should be JSON")
		}
		result = pgtype.JSONB{Bytes: outcome.Result, Status: pgtype.Present}
	}
	if _, err := uuid.Parse(id); err != nil {
		return job.Job{}, Missing{ID: id}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var current string
	if err := tx.QueryRow(
		ctx, `select "status" from "job" where "job_id" = $1 for update`, id,
	).Scan(&current); errors.Is(err, pgx.ErrNoRows) {
		return job.Job{}, Missing{ID: id}
	} else if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	if job.Status(current) != job.Running {
		return job.Job{}, xe.Wrap(fmt.Errorf("%w: job %s is %s", job.ErrNotRunning, id, current))
	}

	j, err := scan(tx.QueryRow(
		ctx,
		`
		update "job"
		set "status" = $2, "result" = $3, "message" = $4, "updated_at" = now()
		where "job_id" = $1
		returning `+columns,
		id, string(outcome.Status), result, outcome.Message,
	))
	if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	return j, nil
}

func (p *pgJob) RequestCancel(ctx context.Context, id string) (job.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return job.Job{}, Missing{ID: id}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var current string
	if err := tx.QueryRow(
		ctx, `select "status" from "job" where "job_id" = $1 for update`, id,
	).Scan(&current); errors.Is(err, pgx.ErrNoRows) {
		return job.Job{}, Missing{ID: id}
	} else if err != nil {
		return job.Job{}, xe.Wrap(err)
	}

	var sql string
	switch st := job.Status(current); {
	case st.Finished():
		return job.Job{}, xe.Wrap(fmt.Errorf("%w: job %s is %s", job.ErrFinished, id, current))
	case st == job.Queued:
		sql = `
		update "job"
		set "status" = 'cancelled', "cancel_requested" = true,
			"message" = 'cancelled before start', "updated_at" = now()
		where "job_id" = $1
		returning ` + columns
	default:
		sql = `
		update "job"
		set "cancel_requested" = true, "updated_at" = now()
		where "job_id" = $1
		returning ` + columns
	}

	j, err := scan(tx.QueryRow(ctx, sql, id))
	if err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return job.Job{}, xe.Wrap(err)
	}
	return j, nil
}

func (p *pgJob) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, Missing{ID: id}
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, xe.Wrap(err)
	}
	defer conn.Release()

	var requested bool
	if err := conn.QueryRow(
		ctx, `select "cancel_requested" from "job" where "job_id" = $1`, id,
	).Scan(&requested); errors.Is(err, pgx.ErrNoRows) {
		return false, Missing{ID: id}
	} else if err != nil {
		return false, xe.Wrap(err)
	}
	return requested, nil
}

func (p *pgJob) Touch(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return Missing{ID: id}
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer conn.Release()

	if _, err := conn.Exec(
		ctx,
		`update "job" set "updated_at" = now() where "job_id" = $1 and "status" = 'running'`,
		id,
	); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (p *pgJob) ReclaimStale(ctx context.Context, olderThan time.Duration) ([]job.Job, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(
		ctx,
		`
		with "stale" as (
			select "job_id" from "job"
			where "status" = 'running' and "updated_at" < now() - ($1::bigint * interval '1 millisecond')
			for update skip locked
		)
		update "job"
		set "status" = 'failed',
			"message" = 'worker ' || "worker" || ' stopped responding',
			"updated_at" = now()
		where "job_id" in (select "job_id" from "stale")
		returning `+columns,
		olderThan.Milliseconds(),
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	ret, err := scanAll(rows)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, xe.Wrap(err)
	}
	return ret, nil
}
