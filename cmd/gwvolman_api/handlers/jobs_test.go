package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/whole-tale/gwvolman/cmd/gwvolman_api/handlers"
	httptestutil "github.com/whole-tale/gwvolman/internal/testutils/http"
	"github.com/whole-tale/gwvolman/pkg/domain/job"
	mockdb "github.com/whole-tale/gwvolman/pkg/domain/job/db/mock"
	"github.com/whole-tale/gwvolman/pkg/tasks"
	"github.com/whole-tale/gwvolman/pkg/utils/cmp"
)

var dummyCreatedAt = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func assertHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("error is nothing")
	}
	var echoErr *echo.HTTPError
	if !errors.As(err, &echoErr) {
		t.Fatalf("error is not echo.HTTPError. acutal = %#v", err)
	}
	if echoErr.Code != code {
		t.Fatalf("unmatch error code:%d, expeced:%d", echoErr.Code, code)
	}
}

func TestSubmitJobHandler(t *testing.T) {
	t.Run("it enqueues a job and responds 201", func(t *testing.T) {
		type when struct {
			body    string
			headers []httptestutil.RequestOption
		}
		type then struct {
			spec job.Spec
		}

		for name, testcase := range map[string]struct {
			when
			then
		}{
			"with token in body": {
				when{
					body: `{"task":"create_volume","args":{"instanceId":"inst-1"},"girderToken":"tok","girderJobId":"gj-1","then":"launch_container"}`,
				},
				then{
					spec: job.Spec{
						Task:        tasks.CreateVolumeTask,
						Args:        json.RawMessage(`{"instanceId":"inst-1"}`),
						GirderToken: "tok",
						GirderJobID: "gj-1",
						Then:        tasks.LaunchContainerTask,
					},
				},
			},
			"with token in header": {
				when{
					body:    `{"task":"remove_volume","args":{"instanceId":"inst-1"}}`,
					headers: []httptestutil.RequestOption{httptestutil.WithHeader(handlers.HeaderGirderToken, "header-tok")},
				},
				then{
					spec: job.Spec{
						Task:        tasks.RemoveVolumeTask,
						Args:        json.RawMessage(`{"instanceId":"inst-1"}`),
						GirderToken: "header-tok",
					},
				},
			},
			"without args": {
				when{
					body: `{"task":"shutdown_container","girderToken":"tok"}`,
				},
				then{
					spec: job.Spec{Task: tasks.ShutdownContainerTask, GirderToken: "tok"},
				},
			},
		} {
			t.Run(name, func(t *testing.T) {
				mockJob := mockdb.New()
				mockJob.Impl.Enqueue = func(ctx context.Context, spec job.Spec) (job.Job, error) {
					return job.Job{
						ID: "job-1", Task: spec.Task, Args: spec.Args, GirderToken: spec.GirderToken,
						GirderJobID: spec.GirderJobID, Then: spec.Then, Status: job.Queued,
						CreatedAt: dummyCreatedAt, UpdatedAt: dummyCreatedAt,
					}, nil
				}

				e := echo.New()
				opts := append([]httptestutil.RequestOption{httptestutil.ContentType("application/json")}, testcase.when.headers...)
				c, respRec := httptestutil.Post(e, "/api/jobs/", strings.NewReader(testcase.when.body), opts...)

				testee := handlers.SubmitJobHandler(mockJob)
				if err := testee(c); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if respRec.Code != http.StatusCreated {
					t.Errorf("status code %d != %d", respRec.Code, http.StatusCreated)
				}
				if loc := respRec.Header().Get("Location"); loc != "/api/jobs/job-1/" {
					t.Errorf("Location: %s", loc)
				}

				if len(mockJob.Calls.Enqueue) != 1 {
					t.Fatalf("Enqueue is called %d times", len(mockJob.Calls.Enqueue))
				}
				actual := mockJob.Calls.Enqueue[0]
				expected := testcase.then.spec
				if actual.Task != expected.Task ||
					actual.GirderToken != expected.GirderToken ||
					actual.GirderJobID != expected.GirderJobID ||
					actual.Then != expected.Then ||
					string(actual.Args) != string(expected.Args) {
					t.Errorf("enqueued spec:\n===actual===\n%+v\n===expected===\n%+v", actual, expected)
				}

				body := map[string]any{}
				if err := json.Unmarshal(respRec.Body.Bytes(), &body); err != nil {
					t.Fatal(err)
				}
				if body["jobId"] != "job-1" || body["status"] != "queued" {
					t.Errorf("unexpected body: %s", respRec.Body.String())
				}
				if _, ok := body["girderToken"]; ok {
					t.Errorf("token is leaked: %s", respRec.Body.String())
				}
			})
		}
	})

	for name, body := range map[string]string{
		"when body is not JSON":          `task=create_volume`,
		"when task is missing":           `{"girderToken":"tok"}`,
		"when task is unknown":           `{"task":"no-such-task","girderToken":"tok"}`,
		"when follow-up task is unknown": `{"task":"create_volume","then":"no-such-task","girderToken":"tok"}`,
		"when args is not an object":     `{"task":"create_volume","args":[1,2],"girderToken":"tok"}`,
		"when token is missing":          `{"task":"create_volume","args":{}}`,
	} {
		t.Run(name+", it responds 400", func(t *testing.T) {
			mockJob := mockdb.New()

			e := echo.New()
			c, _ := httptestutil.Post(e, "/api/jobs/", strings.NewReader(body), httptestutil.ContentType("application/json"))

			err := handlers.SubmitJobHandler(mockJob)(c)
			assertHTTPError(t, err, http.StatusBadRequest)
			if len(mockJob.Calls.Enqueue) != 0 {
				t.Errorf("Enqueue is called: %+v", mockJob.Calls.Enqueue)
			}
		})
	}

	t.Run("when database fails, it responds 500", func(t *testing.T) {
		mockJob := mockdb.New()
		mockJob.Impl.Enqueue = func(context.Context, job.Spec) (job.Job, error) {
			return job.Job{}, errors.New("fake error")
		}

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/jobs/",
			strings.NewReader(`{"task":"create_volume","girderToken":"tok"}`),
			httptestutil.ContentType("application/json"),
		)
		err := handlers.SubmitJobHandler(mockJob)(c)
		assertHTTPError(t, err, http.StatusInternalServerError)
	})
}

func TestFindJobHandler(t *testing.T) {
	t.Run("it responds jobs found by query", func(t *testing.T) {
		type then struct {
			status []job.Status
			task   []string
		}

		for name, testcase := range map[string]struct {
			request string
			then
		}{
			"without query": {
				request: "/api/jobs/",
				then:    then{status: []job.Status{}, task: []string{}},
			},
			"with status and task": {
				request: "/api/jobs/?status=queued,Running&task=create_volume,publish",
				then: then{
					status: []job.Status{job.Queued, job.Running},
					task:   []string{tasks.CreateVolumeTask, tasks.PublishTask},
				},
			},
			"with blank elements": {
				request: "/api/jobs/?status=done,,%20failed&task=",
				then: then{
					status: []job.Status{job.Done, job.Failed},
					task:   []string{},
				},
			},
		} {
			t.Run(name, func(t *testing.T) {
				var actualQuery *job.Query
				mockJob := mockdb.New()
				mockJob.Impl.Find = func(ctx context.Context, q job.Query) ([]job.Job, error) {
					actualQuery = &q
					return []job.Job{
						{ID: "job-1", Task: tasks.CreateVolumeTask, Status: job.Queued, CreatedAt: dummyCreatedAt},
						{ID: "job-2", Task: tasks.PublishTask, Status: job.Running, CreatedAt: dummyCreatedAt},
					}, nil
				}

				e := echo.New()
				c, respRec := httptestutil.Get(e, testcase.request)
				if err := handlers.FindJobHandler(mockJob)(c); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if actualQuery == nil {
					t.Fatal("Find is not called")
				}
				if !cmp.SliceEq(actualQuery.Status, testcase.then.status) {
					t.Errorf("status: %+v != %+v", actualQuery.Status, testcase.then.status)
				}
				if !cmp.SliceEq(actualQuery.Task, testcase.then.task) {
					t.Errorf("task: %+v != %+v", actualQuery.Task, testcase.then.task)
				}

				if respRec.Code != http.StatusOK {
					t.Errorf("status code %d", respRec.Code)
				}
				body := []job.Job{}
				if err := json.Unmarshal(respRec.Body.Bytes(), &body); err != nil {
					t.Fatal(err)
				}
				if len(body) != 2 || body[0].ID != "job-1" || body[1].ID != "job-2" {
					t.Errorf("unexpected body: %s", respRec.Body.String())
				}
			})
		}
	})

	t.Run("it responds an empty list when nothing is found", func(t *testing.T) {
		mockJob := mockdb.New()
		mockJob.Impl.Find = func(context.Context, job.Query) ([]job.Job, error) {
			return nil, nil
		}

		e := echo.New()
		c, respRec := httptestutil.Get(e, "/api/jobs/")
		if err := handlers.FindJobHandler(mockJob)(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if body := strings.TrimSpace(respRec.Body.String()); body != "[]" {
			t.Errorf("unexpected body: %s", body)
		}
	})

	for name, request := range map[string]string{
		"when status is unknown": "/api/jobs/?status=queued,sleeping",
		"when task is unknown":   "/api/jobs/?task=no-such-task",
	} {
		t.Run(name+", it responds 400", func(t *testing.T) {
			mockJob := mockdb.New()

			e := echo.New()
			c, _ := httptestutil.Get(e, request)
			err := handlers.FindJobHandler(mockJob)(c)
			assertHTTPError(t, err, http.StatusBadRequest)
		})
	}

	t.Run("when database fails, it responds 500", func(t *testing.T) {
		mockJob := mockdb.New()
		mockJob.Impl.Find = func(context.Context, job.Query) ([]job.Job, error) {
			return nil, errors.New("fake error")
		}

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/jobs/")
		err := handlers.FindJobHandler(mockJob)(c)
		assertHTTPError(t, err, http.StatusInternalServerError)
	})
}

func TestGetJobHandler(t *testing.T) {
	t.Run("it responds the job", func(t *testing.T) {
		mockJob := mockdb.New()
		var actualId string
		mockJob.Impl.Get = func(ctx context.Context, id string) (job.Job, error) {
			actualId = id
			return job.Job{
				ID: id, Task: tasks.PublishTask, Status: job.Done,
				Result: json.RawMessage(`{"packageUrl":"https://example.com/pkg"}`),
			}, nil
		}

		e := echo.New()
		c, respRec := httptestutil.Get(e, "/api/jobs/job-1/")
		c.SetParamNames("jobId")
		c.SetParamValues("job-1")

		if err := handlers.GetJobHandler(mockJob, "jobId")(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if actualId != "job-1" {
			t.Errorf("Get is called with %s", actualId)
		}
		if respRec.Code != http.StatusOK {
			t.Errorf("status code %d", respRec.Code)
		}

		body := job.Job{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.ID != "job-1" || body.Status != job.Done || string(body.Result) != `{"packageUrl":"https://example.com/pkg"}` {
			t.Errorf("unexpected body: %s", respRec.Body.String())
		}
	})

	t.Run("it masks secrets in args", func(t *testing.T) {
		mockJob := mockdb.New()
		mockJob.Impl.Get = func(ctx context.Context, id string) (job.Job, error) {
			return job.Job{
				ID: id, Task: tasks.PublishTask, Status: job.Running, GirderToken: "girder-secret",
				Args: json.RawMessage(`{"taleId":"tale-1","dataoneAuthToken":"d1-secret"}`),
			}, nil
		}

		e := echo.New()
		c, respRec := httptestutil.Get(e, "/api/jobs/job-1/")
		c.SetParamNames("jobId")
		c.SetParamValues("job-1")

		if err := handlers.GetJobHandler(mockJob, "jobId")(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, secret := range []string{"d1-secret", "girder-secret"} {
			if strings.Contains(respRec.Body.String(), secret) {
				t.Errorf("%s is leaked: %s", secret, respRec.Body.String())
			}
		}
		if !strings.Contains(respRec.Body.String(), `"taleId":"tale-1"`) {
			t.Errorf("unexpected body: %s", respRec.Body.String())
		}
	})

	for name, testcase := range map[string]struct {
		err  error
		code int
	}{
		"missing job":    {err: fmt.Errorf("%w: job-1", job.ErrMissing), code: http.StatusNotFound},
		"database error": {err: errors.New("fake error"), code: http.StatusInternalServerError},
	} {
		t.Run("when "+name+", it responds error", func(t *testing.T) {
			mockJob := mockdb.New()
			mockJob.Impl.Get = func(context.Context, string) (job.Job, error) {
				return job.Job{}, testcase.err
			}

			e := echo.New()
			c, _ := httptestutil.Get(e, "/api/jobs/job-1/")
			c.SetParamNames("jobId")
			c.SetParamValues("job-1")

			err := handlers.GetJobHandler(mockJob, "jobId")(c)
			assertHTTPError(t, err, testcase.code)
		})
	}
}

func TestCancelJobHandler(t *testing.T) {
	t.Run("it requests cancellation", func(t *testing.T) {
		for name, state := range map[string]job.Job{
			"of queued job": {
				ID: "job-1", Status: job.Cancelled, CancelRequested: true,
				Message: "cancelled before start",
			},
			"of running job": {
				ID: "job-1", Status: job.Running, CancelRequested: true,
			},
		} {
			t.Run(name, func(t *testing.T) {
				mockJob := mockdb.New()
				mockJob.Impl.RequestCancel = func(context.Context, string) (job.Job, error) {
					return state, nil
				}

				e := echo.New()
				c, respRec := httptestutil.Delete(e, "/api/jobs/job-1/")
				c.SetParamNames("jobId")
				c.SetParamValues("job-1")

				if err := handlers.CancelJobHandler(mockJob, "jobId")(c); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !cmp.SliceEq(mockJob.Calls.RequestCancel, []string{"job-1"}) {
					t.Errorf("RequestCancel is called with %+v", mockJob.Calls.RequestCancel)
				}
				if respRec.Code != http.StatusOK {
					t.Errorf("status code %d", respRec.Code)
				}
				body := job.Job{}
				if err := json.Unmarshal(respRec.Body.Bytes(), &body); err != nil {
					t.Fatal(err)
				}
				if body.Status != state.Status || !body.CancelRequested {
					t.Errorf("unexpected body: %s", respRec.Body.String())
				}
			})
		}
	})

	for name, testcase := range map[string]struct {
		err  error
		code int
	}{
		"missing job":    {err: fmt.Errorf("%w: job-1", job.ErrMissing), code: http.StatusNotFound},
		"finished job":   {err: fmt.Errorf("%w: job-1", job.ErrFinished), code: http.StatusConflict},
		"database error": {err: errors.New("fake error"), code: http.StatusInternalServerError},
	} {
		t.Run("when "+name+", it responds error", func(t *testing.T) {
			mockJob := mockdb.New()
			mockJob.Impl.RequestCancel = func(context.Context, string) (job.Job, error) {
				return job.Job{}, testcase.err
			}

			e := echo.New()
			c, _ := httptestutil.Delete(e, "/api/jobs/job-1/")
			c.SetParamNames("jobId")
			c.SetParamValues("job-1")

			err := handlers.CancelJobHandler(mockJob, "jobId")(c)
			assertHTTPError(t, err, testcase.code)
		})
	}
}
