package build_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/whole-tale/gwvolman/internal/testutils/config"
	"github.com/whole-tale/gwvolman/pkg/utils/cmp"
	"github.com/whole-tale/gwvolman/pkg/utils/try"
	"github.com/whole-tale/gwvolman/pkg/workloads/build"
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s"
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s/mock"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestArgs(t *testing.T) {
	actual := build.Args("registry.wholetale.test/tale1", "/tmp/x/repo")
	expected := []string{
		"--image-name", "registry.wholetale.test/tale1",
		"--no-run", "--push",
		"--user-id=1000", "--user-name=jovyan",
		"/tmp/x/repo",
	}
	if !cmp.SliceEq(actual, expected) {
		t.Errorf("unexpected args: (actual, expected) = (%v, %v)", actual, expected)
	}
}

func TestPrepare(t *testing.T) {
	workdir := t.TempDir()
	repo := try.To(build.Prepare(workdir, "registry.wholetale.test", "fido", "secret")).OrFatal(t)

	if repo != filepath.Join(workdir, "repo") {
		t.Errorf("unexpected repo dir: %s", repo)
	}
	if st, err := os.Stat(repo); err != nil || !st.IsDir() {
		t.Errorf("repo dir is not created: %v", err)
	}

	buf := try.To(os.ReadFile(filepath.Join(workdir, ".docker", "config.json"))).OrFatal(t)
	conf := struct {
		Auths map[string]struct {
			Auth string `json:"auth"`
		} `json:"auths"`
	}{}
	if err := json.Unmarshal(buf, &conf); err != nil {
		t.Fatal(err)
	}
	auth := try.To(base64.StdEncoding.DecodeString(conf.Auths["registry.wholetale.test"].Auth)).OrFatal(t)
	if string(auth) != "fido:secret" {
		t.Errorf("unexpected auth: %s", auth)
	}
}

func TestSubprocess(t *testing.T) {
	fake := func(t *testing.T, exit int) string {
		dir := t.TempDir()
		script := filepath.Join(dir, "fake-repo2docker")
		content := "#!/bin/sh\n" +
			"echo \"image $2\"\n" +
			"echo \"config $DOCKER_CONFIG\" 1>&2\n" +
			"exit " + string(rune('0'+exit)) + "\n"
		if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
			t.Fatal(err)
		}
		return script
	}

	t.Run("it streams log lines", func(t *testing.T) {
		workdir := t.TempDir()
		testee := build.Subprocess(fake(t, 0))

		lines := []string{}
		err := testee.Build(
			context.Background(),
			build.Request{TaleID: "tale1", Tag: "registry.wholetale.test/tale1", WorkDir: workdir},
			func(l string) { lines = append(lines, l) },
		)
		if err != nil {
			t.Fatal(err)
		}
		expected := []string{
			"image registry.wholetale.test/tale1",
			"config " + filepath.Join(workdir, ".docker"),
		}
		if !cmp.SliceContentEq(lines, expected) {
			t.Errorf("unexpected lines: (actual, expected) = (%v, %v)", lines, expected)
		}
	})

	t.Run("non-zero exit is an error", func(t *testing.T) {
		testee := build.Subprocess(fake(t, 3))
		err := testee.Build(
			context.Background(),
			build.Request{TaleID: "tale1", Tag: "t", WorkDir: t.TempDir()},
			func(string) {},
		)
		if err == nil || !strings.Contains(err.Error(), "exited with 3") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestJobBuild(t *testing.T) {
	conf := config.New(t)
	req := build.Request{TaleID: "tale1", Tag: "registry.wholetale.test/tale1", WorkDir: "/host/tmp/build-1"}

	actual := build.JobOf(req, "/host", "XyZ").Build(build.JobConfig{Cluster: conf.Cluster(), Build: conf.Build()})

	if actual.Name != "build-tale1-xyz" || actual.Namespace != "wt" {
		t.Errorf("unexpected name: %s/%s", actual.Namespace, actual.Name)
	}
	pod := actual.Spec.Template.Spec
	if pod.NodeName != "node-1" || pod.RestartPolicy != kubecore.RestartPolicyNever {
		t.Errorf("unexpected pod spec: node = %s, restart = %s", pod.NodeName, pod.RestartPolicy)
	}
	c := pod.Containers[0]
	if c.Image != "jupyter/repo2docker:0.7.0" || !cmp.SliceEq(c.Command, []string{"jupyter-repo2docker"}) {
		t.Errorf("unexpected container: %s %v", c.Image, c.Command)
	}
	if !cmp.SliceEq(c.Args, build.Args("registry.wholetale.test/tale1", "/build/repo")) {
		t.Errorf("unexpected args: %v", c.Args)
	}
	if pod.Volumes[0].HostPath.Path != "/tmp/build-1" {
		t.Errorf("unexpected host path: %s", pod.Volumes[0].HostPath.Path)
	}
	if c.Env[0].Name != "DOCKER_CONFIG" || c.Env[0].Value != "/build/.docker" {
		t.Errorf("unexpected env: %v", c.Env)
	}
}

func TestInCluster(t *testing.T) {
	conf := config.New(t)
	jobconf := build.JobConfig{Cluster: conf.Cluster(), Build: conf.Build()}

	prepare := func(t *testing.T, succeeded bool) (k8s.Cluster, *mock.MockClient) {
		cluster, client := mock.NewCluster()
		client.Impl.CreateJob = func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
			ret := job.DeepCopy()
			ret.Status.Active = 1
			return ret, nil
		}
		client.Impl.FindPods = func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
			state := kubecore.ContainerState{}
			if !succeeded {
				state.Terminated = &kubecore.ContainerStateTerminated{ExitCode: 1, Reason: "Error"}
			}
			return []kubecore.Pod{
				{
					ObjectMeta: kubeapimeta.ObjectMeta{Name: "build-pod", Namespace: namespace},
					Status: kubecore.PodStatus{
						Phase: kubecore.PodRunning,
						ContainerStatuses: []kubecore.ContainerStatus{
							{Name: build.ContainerName, State: state},
						},
					},
				},
			}, nil
		}
		client.Impl.Log = func(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("Step 1/2\nStep 2/2\n")), nil
		}
		client.Impl.GetJob = func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
			cond := kubebatch.JobComplete
			if !succeeded {
				cond = kubebatch.JobFailed
			}
			return &kubebatch.Job{
				ObjectMeta: kubeapimeta.ObjectMeta{Name: name, Namespace: namespace},
				Status: kubebatch.JobStatus{
					Conditions: []kubebatch.JobCondition{{Type: cond, Status: kubecore.ConditionTrue}},
				},
			}, nil
		}
		client.Impl.DeleteJob = func(ctx context.Context, namespace string, name string) error {
			return nil
		}
		return cluster, client
	}

	req := build.Request{TaleID: "tale1", Tag: "registry.wholetale.test/tale1", WorkDir: "/host/tmp/b"}

	t.Run("when the job succeeds, it streams log and deletes the job", func(t *testing.T) {
		cluster, client := prepare(t, true)
		testee := build.InCluster(cluster, jobconf, "/host", func() string { return "abc" })

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		lines := []string{}
		if err := testee.Build(ctx, req, func(l string) { lines = append(lines, l) }); err != nil {
			t.Fatal(err)
		}
		if !cmp.SliceEq(lines, []string{"Step 1/2", "Step 2/2"}) {
			t.Errorf("unexpected lines: %v", lines)
		}
		if client.Called.DeleteJob != 1 {
			t.Errorf("job is not deleted")
		}
	})

	t.Run("when the job fails, it returns error with exit code", func(t *testing.T) {
		cluster, _ := prepare(t, false)
		testee := build.InCluster(cluster, jobconf, "/host", func() string { return "abc" })

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := testee.Build(ctx, req, func(string) {})
		if err == nil || !strings.Contains(err.Error(), "exited with 1") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
