package schema_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/whole-tale/gwvolman/pkg/db/postgres/pool"
	"github.com/whole-tale/gwvolman/pkg/db/postgres/pool/testenv"
	"github.com/whole-tale/gwvolman/pkg/db/postgres/schema"
	"github.com/whole-tale/gwvolman/pkg/utils/cmp"
	"github.com/whole-tale/gwvolman/pkg/utils/try"
)

var v1 = map[string]string{
	"01_version.sql": `create table "schema_version" ("version" integer not null);`,
	"02_foo.sql": `
		create table "foo" ("id" integer primary key, "name" text not null);
		insert into "foo" ("id", "name") values (1, 'foo-1');
	`,
}

var v2 = map[string]string{
	"bar.sql": `
		create table "bar" ("id" integer primary key, "name" text not null);
		insert into "bar" ("id", "name") values (1, 'bar-1');
		insert into "foo" ("id", "name") values (2, 'foo-2');
	`,
}

// repository writes versions into a new schema repository.
func repository(t *testing.T, versions ...map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for i, files := range versions {
		addVersion(t, root, i+1, files)
	}
	return root
}

func addVersion(t *testing.T, root string, number int, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, itoa(number))
	if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), os.FileMode(0o644)); err != nil {
			t.Fatal(err)
		}
	}
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func names(ctx context.Context, t *testing.T, pool kpool.Pool, table string) ([]string, bool) {
	t.Helper()
	conn := try.To(pool.Acquire(ctx)).OrFatal(t)
	defer conn.Release()

	missing := func(err error) bool {
		pgerr := new(pgconn.PgError)
		return errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UndefinedTable
	}

	rows, err := conn.Query(ctx, `select "name" from "`+table+`" order by "id"`)
	if missing(err) {
		return nil, false
	} else if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	ret := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatal(err)
		}
		ret = append(ret, n)
	}
	if err := rows.Err(); missing(err) {
		return nil, false
	} else if err != nil {
		t.Fatal(err)
	}
	return ret, true
}

func testContext(t *testing.T) context.Context {
	ctx := context.Background()
	if dl, ok := t.Deadline(); ok {
		c, cancel := context.WithDeadline(ctx, dl.Add(-1*time.Second))
		t.Cleanup(cancel)
		ctx = c
	}
	return ctx
}

func TestSchema_Upgrade(t *testing.T) {
	ctx := testContext(t)
	broaker := testenv.NewPoolBroaker(ctx, t, testenv.WithoutSchema())

	t.Run("it builds schema from scratch", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := schema.New(pool, repository(t, v1, v2))

		if got := try.To(testee.Version(ctx)).OrFatal(t); got != 0 {
			t.Errorf("version before upgrade: got %d, want 0", got)
		}
		if err := testee.Upgrade(ctx); err != nil {
			t.Fatal(err)
		}
		if got := try.To(testee.Version(ctx)).OrFatal(t); got != 2 {
			t.Errorf("version after upgrade: got %d, want 2", got)
		}

		if got, _ := names(ctx, t, pool, "foo"); !cmp.SliceEq(got, []string{"foo-1", "foo-2"}) {
			t.Errorf("table foo: got %v", got)
		}
		if got, _ := names(ctx, t, pool, "bar"); !cmp.SliceEq(got, []string{"bar-1"}) {
			t.Errorf("table bar: got %v", got)
		}
	})

	t.Run("it applies only newer versions", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		root := repository(t, v1)
		testee := schema.New(pool, root)
		if err := testee.Upgrade(ctx); err != nil {
			t.Fatal(err)
		}
		if got := try.To(testee.Version(ctx)).OrFatal(t); got != 1 {
			t.Errorf("version after first upgrade: got %d, want 1", got)
		}

		addVersion(t, root, 2, v2)
		if err := testee.Upgrade(ctx); err != nil {
			t.Fatal(err)
		}
		if got := try.To(testee.Version(ctx)).OrFatal(t); got != 2 {
			t.Errorf("version after second upgrade: got %d, want 2", got)
		}
		if got, _ := names(ctx, t, pool, "foo"); !cmp.SliceEq(got, []string{"foo-1", "foo-2"}) {
			t.Errorf("table foo: got %v", got)
		}
	})

	t.Run("a broken version is rolled back", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := schema.New(pool, repository(t, v1, map[string]string{
			"broken.sql": `create table "bar" (`,
		}))
		if err := testee.Upgrade(ctx); err == nil {
			t.Fatal("expected error does not occur")
		}
		if got := try.To(testee.Version(ctx)).OrFatal(t); got != 0 {
			t.Errorf("version: got %d, want 0", got)
		}
		if _, ok := names(ctx, t, pool, "foo"); ok {
			t.Error("table foo should not exist")
		}
	})
}

func TestSchema_Context(t *testing.T) {
	ctx := testContext(t)
	pool := testenv.NewPoolBroaker(ctx, t, testenv.WithoutSchema()).GetPool(ctx, t)

	root := repository(t, v1)
	testee := schema.New(pool, root)

	t.Run("it is cancelled when the database is outdated", func(t *testing.T) {
		sctx, cancel := testee.Context(ctx)
		defer cancel()
		select {
		case <-sctx.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("context is not cancelled")
		}
	})

	if err := testee.Upgrade(ctx); err != nil {
		t.Fatal(err)
	}

	t.Run("it is cancelled when a new version comes", func(t *testing.T) {
		sctx, cancel := testee.Context(ctx)
		defer cancel()

		select {
		case <-sctx.Done():
			t.Fatalf("context is cancelled by %v", context.Cause(sctx))
		case <-time.After(500 * time.Millisecond):
		}

		addVersion(t, root, 2, v2)
		select {
		case <-sctx.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("context is not cancelled")
		}
	})
}

func TestNull(t *testing.T) {
	testee := schema.Null()
	ctx := context.Background()

	if v, err := testee.Version(ctx); err != nil || v != -1 {
		t.Errorf("Version: got (%d, %v)", v, err)
	}
	if err := testee.Upgrade(ctx); err == nil {
		t.Error("Upgrade should fail")
	}
	sctx, cancel := testee.Context(ctx)
	defer cancel()
	if sctx.Err() != nil {
		t.Error("context should not be cancelled")
	}
}
