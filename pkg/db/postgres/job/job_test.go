package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kpgjob "github.com/whole-tale/gwvolman/pkg/db/postgres/job"
	kpool "github.com/whole-tale/gwvolman/pkg/db/postgres/pool"
	"github.com/whole-tale/gwvolman/pkg/db/postgres/pool/testenv"
	"github.com/whole-tale/gwvolman/pkg/domain/job"
	"github.com/whole-tale/gwvolman/pkg/utils/try"
)

func enqueue(ctx context.Context, t *testing.T, pool kpool.Pool, spec job.Spec) job.Job {
	t.Helper()
	return try.To(kpgjob.New(pool).Enqueue(ctx, spec)).OrFatal(t)
}

// backdate sets updated_at of the job d before now.
func backdate(ctx context.Context, t *testing.T, pool kpool.Pool, id string, d time.Duration) {
	t.Helper()
	conn := try.To(pool.Acquire(ctx)).OrFatal(t)
	defer conn.Release()
	if _, err := conn.Exec(
		ctx,
		`update "job" set "created_at" = now() - ($2::bigint * interval '1 millisecond'), "updated_at" = now() - ($2::bigint * interval '1 millisecond') where "job_id" = $1`,
		id, d.Milliseconds(),
	); err != nil {
		t.Fatal(err)
	}
}

func TestJob_Enqueue(t *testing.T) {
	ctx := context.Background()
	broaker := testenv.NewPoolBroaker(ctx, t)

	t.Run("it queues a job", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)

		got, err := testee.Enqueue(ctx, job.Spec{
			Task:        "create_volume",
			Args:        json.RawMessage(`{"instanceId": "inst-1"}`),
			GirderToken: "token-1",
			GirderJobID: "gjob-1",
			Then:        "launch_container",
		})
		if err != nil {
			t.Fatal(err)
		}
		if got.ID == "" || got.Status != job.Queued || got.CancelRequested {
			t.Errorf("unexpected job: %+v", got)
		}
		if got.Task != "create_volume" || got.GirderToken != "token-1" ||
			got.GirderJobID != "gjob-1" || got.Then != "launch_container" {
			t.Errorf("unexpected job: %+v", got)
		}
		var args map[string]string
		if err := json.Unmarshal(got.Args, &args); err != nil || args["instanceId"] != "inst-1" {
			t.Errorf("unexpected args: %s", got.Args)
		}

		stored := try.To(testee.Get(ctx, got.ID)).OrFatal(t)
		if stored.ID != got.ID || stored.Status != job.Queued || stored.Result != nil {
			t.Errorf("unexpected stored job: %+v", stored)
		}
	})

	t.Run("empty args are stored as an empty object", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		got := enqueue(ctx, t, pool, job.Spec{Task: "remove_volume"})
		if string(got.Args) != "{}" {
			t.Errorf("args: got %s", got.Args)
		}
	})

	t.Run("it rejects jobs without task", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		if _, err := kpgjob.New(pool).Enqueue(ctx, job.Spec{}); err == nil {
			t.Error("expected error does not occur")
		}
	})
}

func TestJob_Get_Missing(t *testing.T) {
	ctx := context.Background()
	pool := testenv.NewPoolBroaker(ctx, t).GetPool(ctx, t)
	testee := kpgjob.New(pool)

	for _, id := range []string{"not-a-uuid", "7e1b9a30-2f7e-4d1a-9d61-2f0c8a4f0001"} {
		_, err := testee.Get(ctx, id)
		if !errors.Is(err, job.ErrMissing) {
			t.Errorf("%s: got %v, want ErrMissing", id, err)
		}
	}
}

func TestJob_Find(t *testing.T) {
	ctx := context.Background()
	pool := testenv.NewPoolBroaker(ctx, t).GetPool(ctx, t)
	testee := kpgjob.New(pool)

	j1 := enqueue(ctx, t, pool, job.Spec{Task: "create_volume"})
	backdate(ctx, t, pool, j1.ID, 3*time.Minute)
	j2 := enqueue(ctx, t, pool, job.Spec{Task: "build_tale_image"})
	backdate(ctx, t, pool, j2.ID, 2*time.Minute)
	j3 := enqueue(ctx, t, pool, job.Spec{Task: "create_volume"})
	backdate(ctx, t, pool, j3.ID, 1*time.Minute)

	claimed := try.To(testee.Claim(ctx, []string{"build_tale_image"}, "worker-1")).OrFatal(t)
	if claimed == nil || claimed.ID != j2.ID {
		t.Fatalf("unexpected claim: %+v", claimed)
	}

	ids := func(js []job.Job) []string {
		ret := []string{}
		for _, j := range js {
			ret = append(ret, j.ID)
		}
		return ret
	}

	for name, testcase := range map[string]struct {
		query job.Query
		want  []string
	}{
		"empty query matches all, oldest first": {
			query: job.Query{},
			want:  []string{j1.ID, j2.ID, j3.ID},
		},
		"by status": {
			query: job.Query{Status: []job.Status{job.Queued}},
			want:  []string{j1.ID, j3.ID},
		},
		"by task": {
			query: job.Query{Task: []string{"build_tale_image"}},
			want:  []string{j2.ID},
		},
		"by status and task": {
			query: job.Query{Status: []job.Status{job.Running, job.Done}, Task: []string{"create_volume"}},
			want:  []string{},
		},
	} {
		t.Run(name, func(t *testing.T) {
			got := ids(try.To(testee.Find(ctx, testcase.query)).OrFatal(t))
			if len(got) != len(testcase.want) {
				t.Fatalf("got %v, want %v", got, testcase.want)
			}
			for i := range got {
				if got[i] != testcase.want[i] {
					t.Errorf("got %v, want %v", got, testcase.want)
				}
			}
		})
	}
}

func TestJob_Claim(t *testing.T) {
	ctx := context.Background()
	broaker := testenv.NewPoolBroaker(ctx, t)

	t.Run("it claims the oldest queued job of the tasks", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)

		older := enqueue(ctx, t, pool, job.Spec{Task: "create_volume"})
		backdate(ctx, t, pool, older.ID, time.Minute)
		enqueue(ctx, t, pool, job.Spec{Task: "create_volume"})

		got := try.To(testee.Claim(ctx, []string{"create_volume", "remove_volume"}, "worker-1")).OrFatal(t)
		if got == nil {
			t.Fatal("nothing claimed")
		}
		if got.ID != older.ID || got.Status != job.Running || got.Worker != "worker-1" {
			t.Errorf("unexpected claim: %+v", got)
		}
	})

	t.Run("it claims nothing when there are no queued jobs of the tasks", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		enqueue(ctx, t, pool, job.Spec{Task: "publish"})

		got, err := testee.Claim(ctx, []string{"create_volume"}, "worker-1")
		if err != nil || got != nil {
			t.Errorf("got (%+v, %v)", got, err)
		}
		got, err = testee.Claim(ctx, nil, "worker-1")
		if err != nil || got != nil {
			t.Errorf("got (%+v, %v)", got, err)
		}
	})

	t.Run("a job is claimed only once", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		enqueue(ctx, t, pool, job.Spec{Task: "create_volume"})

		results := make(chan *job.Job, 4)
		for range 4 {
			go func() {
				got, err := testee.Claim(ctx, []string{"create_volume"}, "worker")
				if err != nil {
					t.Error(err)
				}
				results <- got
			}()
		}
		claimed := 0
		for range 4 {
			if <-results != nil {
				claimed += 1
			}
		}
		if claimed != 1 {
			t.Errorf("claimed %d times", claimed)
		}
	})
}

func TestJob_Finish(t *testing.T) {
	ctx := context.Background()
	broaker := testenv.NewPoolBroaker(ctx, t)

	t.Run("it finishes a running job with result", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		enqueue(ctx, t, pool, job.Spec{Task: "build_tale_image"})
		running := try.To(testee.Claim(ctx, []string{"build_tale_image"}, "w")).OrFatal(t)

		got, err := testee.Finish(ctx, running.ID, job.Succeeded(json.RawMessage(`"registry/tale@sha256:00"`)))
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != job.Done || string(got.Result) != `"registry/tale@sha256:00"` {
			t.Errorf("unexpected job: %+v", got)
		}
	})

	t.Run("it fails a running job with message", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		enqueue(ctx, t, pool, job.Spec{Task: "publish"})
		running := try.To(testee.Claim(ctx, []string{"publish"}, "w")).OrFatal(t)

		got := try.To(testee.Finish(ctx, running.ID, job.FailedWith("There are no files in the Tale."))).OrFatal(t)
		if got.Status != job.Failed || got.Message != "There are no files in the Tale." || got.Result != nil {
			t.Errorf("unexpected job: %+v", got)
		}
	})

	t.Run("it does not finish jobs not running", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		queued := enqueue(ctx, t, pool, job.Spec{Task: "publish"})

		if _, err := testee.Finish(ctx, queued.ID, job.Succeeded(nil)); !errors.Is(err, job.ErrNotRunning) {
			t.Errorf("got %v, want ErrNotRunning", err)
		}
		if _, err := testee.Finish(ctx, "7e1b9a30-2f7e-4d1a-9d61-2f0c8a4f0001", job.Succeeded(nil)); !errors.Is(err, job.ErrMissing) {
			t.Errorf("got %v, want ErrMissing", err)
		}
	})

	t.Run("it does not finish with a non-terminal status", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		enqueue(ctx, t, pool, job.Spec{Task: "publish"})
		running := try.To(testee.Claim(ctx, []string{"publish"}, "w")).OrFatal(t)

		if _, err := testee.Finish(ctx, running.ID, job.Outcome{Status: job.Queued}); err == nil {
			t.Error("expected error does not occur")
		}
	})
}

func TestJob_RequestCancel(t *testing.T) {
	ctx := context.Background()
	broaker := testenv.NewPoolBroaker(ctx, t)

	t.Run("a queued job is cancelled at once", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		queued := enqueue(ctx, t, pool, job.Spec{Task: "import_tale"})

		got := try.To(testee.RequestCancel(ctx, queued.ID)).OrFatal(t)
		if got.Status != job.Cancelled || !got.CancelRequested {
			t.Errorf("unexpected job: %+v", got)
		}
		if c := try.To(testee.Claim(ctx, []string{"import_tale"}, "w")).OrFatal(t); c != nil {
			t.Errorf("cancelled job is claimed: %+v", c)
		}
	})

	t.Run("a running job is flagged", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		enqueue(ctx, t, pool, job.Spec{Task: "import_tale"})
		running := try.To(testee.Claim(ctx, []string{"import_tale"}, "w")).OrFatal(t)

		if requested := try.To(testee.IsCancelRequested(ctx, running.ID)).OrFatal(t); requested {
			t.Error("cancel is requested before the request")
		}

		got := try.To(testee.RequestCancel(ctx, running.ID)).OrFatal(t)
		if got.Status != job.Running || !got.CancelRequested {
			t.Errorf("unexpected job: %+v", got)
		}
		if requested := try.To(testee.IsCancelRequested(ctx, running.ID)).OrFatal(t); !requested {
			t.Error("cancel is not requested")
		}
	})

	t.Run("a finished job can not be cancelled", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		enqueue(ctx, t, pool, job.Spec{Task: "import_tale"})
		running := try.To(testee.Claim(ctx, []string{"import_tale"}, "w")).OrFatal(t)
		try.To(testee.Finish(ctx, running.ID, job.Succeeded(nil))).OrFatal(t)

		if _, err := testee.RequestCancel(ctx, running.ID); !errors.Is(err, job.ErrFinished) {
			t.Errorf("got %v, want ErrFinished", err)
		}
	})

	t.Run("a missing job can not be cancelled", func(t *testing.T) {
		pool := broaker.GetPool(ctx, t)
		testee := kpgjob.New(pool)
		if _, err := testee.RequestCancel(ctx, "7e1b9a30-2f7e-4d1a-9d61-2f0c8a4f0001"); !errors.Is(err, job.ErrMissing) {
			t.Errorf("got %v, want ErrMissing", err)
		}
	})
}

func TestJob_ReclaimStale(t *testing.T) {
	ctx := context.Background()
	pool := testenv.NewPoolBroaker(ctx, t).GetPool(ctx, t)
	testee := kpgjob.New(pool)

	enqueue(ctx, t, pool, job.Spec{Task: "launch_container"})
	enqueue(ctx, t, pool, job.Spec{Task: "launch_container"})
	stale := try.To(testee.Claim(ctx, []string{"launch_container"}, "worker-lost")).OrFatal(t)
	alive := try.To(testee.Claim(ctx, []string{"launch_container"}, "worker-alive")).OrFatal(t)
	backdate(ctx, t, pool, stale.ID, 10*time.Minute)
	backdate(ctx, t, pool, alive.ID, 10*time.Minute)
	if err := testee.Touch(ctx, alive.ID); err != nil {
		t.Fatal(err)
	}

	got := try.To(testee.ReclaimStale(ctx, 5*time.Minute)).OrFatal(t)
	if len(got) != 1 || got[0].ID != stale.ID {
		t.Fatalf("unexpected reclaimed jobs: %+v", got)
	}
	if got[0].Status != job.Failed || got[0].Message != "worker worker-lost stopped responding" {
		t.Errorf("unexpected reclaimed job: %+v", got[0])
	}

	if a := try.To(testee.Get(ctx, alive.ID)).OrFatal(t); a.Status != job.Running {
		t.Errorf("alive job is reclaimed: %+v", a)
	}
}
