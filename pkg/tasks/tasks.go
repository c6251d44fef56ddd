// Package tasks implements handlers of tale lifecycle tasks.
//
// Each task fetches entities from Girder, drives one external system
// (cluster, girderfs, repo2docker or DataONE), reports progress to the
// Girder job, and returns a result payload.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	gwvconf "github.com/whole-tale/gwvolman/pkg/configs/gwvolman"
	"github.com/whole-tale/gwvolman/pkg/deployment"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/girderfs"
	"github.com/whole-tale/gwvolman/pkg/images/registry"
	"github.com/whole-tale/gwvolman/pkg/publish"
	"github.com/whole-tale/gwvolman/pkg/workloads/build"
	k8s "github.com/whole-tale/gwvolman/pkg/workloads/k8s"
)

// Task names.
const (
	CreateVolumeTask      = "create_volume"
	LaunchContainerTask   = "launch_container"
	UpdateContainerTask   = "update_container"
	ShutdownContainerTask = "shutdown_container"
	RemoveVolumeTask      = "remove_volume"
	BuildTaleImageTask    = "build_tale_image"
	PublishTask           = "publish"
	ImportTaleTask        = "import_tale"
)

// Env is a set of dependencies shared by tasks.
type Env struct {
	Config     *gwvconf.Config
	Cluster    k8s.Cluster
	Deployment deployment.Deployment
	Registry   registry.Registry

	// Mounter returns girderfs mounter acting with a Girder api key.
	Mounter func(apiKey string) girderfs.Mounter

	// Builder builds tale images.
	Builder build.Builder

	// Publisher returns a Publisher acting with a Girder client.
	Publisher func(gc girder.Client, logger *log.Logger) *publish.Publisher

	// Chown changes owner of the tree under root. When nil, ChownTree is used.
	Chown func(root string, uid int, gid int) error

	// Random returns a random alphanumeric string with length n.
	// When nil, RandomString is used.
	Random func(n int) string

	// Token returns a secret of a session. When nil, a random uuid in hex is used.
	Token func() string

	// PollInterval is the interval of polling the cluster and Girder.
	// When zero, a default is used per task.
	PollInterval time.Duration
}

func (e *Env) random(n int) string {
	if e.Random != nil {
		return e.Random(n)
	}
	return RandomString(n)
}

func (e *Env) token() string {
	if e.Token != nil {
		return e.Token()
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (e *Env) pollInterval(d time.Duration) time.Duration {
	if e.PollInterval != 0 {
		return e.PollInterval
	}
	return d
}

func (e *Env) chown(root string, uid int, gid int) error {
	if e.Chown != nil {
		return e.Chown(root, uid, gid)
	}
	return ChownTree(root, uid, gid)
}

// NewEnv returns Env with production dependencies.
func NewEnv(
	conf *gwvconf.Config,
	cluster k8s.Cluster,
	dpl deployment.Deployment,
	reg registry.Registry,
) *Env {
	var builder build.Builder
	switch conf.Build().Mode() {
	case gwvconf.BuildInJob:
		builder = build.InCluster(
			cluster,
			build.JobConfig{Cluster: conf.Cluster(), Build: conf.Build()},
			conf.HostDir(),
			func() string { return RandomString(6) },
		)
	default:
		builder = build.Subprocess(conf.Build().Command())
	}

	runner := girderfs.ExecRunner()
	apiUrl := conf.Girder().ApiUrl()
	httpclient := &http.Client{}

	return &Env{
		Config:     conf,
		Cluster:    cluster,
		Deployment: dpl,
		Registry:   reg,
		Mounter: func(apiKey string) girderfs.Mounter {
			return girderfs.New(runner, apiUrl, apiKey)
		},
		Builder: builder,
		Publisher: func(gc girder.Client, logger *log.Logger) *publish.Publisher {
			p := publish.New(gc, conf.DataONE().Url(), httpclient, logger)
			p.TmpDir = conf.Build().TmpDir()
			return p
		},
	}
}

// Call is an invocation of a task.
type Call struct {
	// Girder acts with the token of the user who requested the task.
	Girder girder.Client

	Progress Progress
	Logger   *log.Logger
}

// Handler runs a task with arguments in JSON, and returns its result.
//
// The result is nil when the task has nothing to return.
type Handler func(ctx context.Context, env *Env, call Call, args json.RawMessage) (any, error)

// Task is a registered task.
type Task struct {
	Name string `json:"name"`

	// Title is the title of Girder jobs running the task.
	Title string `json:"title"`

	Handler Handler `json:"-"`
}

// handle adapts a typed handler into Handler.
func handle[A any, R any](fn func(context.Context, *Env, Call, A) (R, error)) Handler {
	return func(ctx context.Context, env *Env, call Call, raw json.RawMessage) (any, error) {
		var args A
		if len(raw) != 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, NewUserError(fmt.Sprintf("malformed arguments: %s", err), err)
			}
		}
		return fn(ctx, env, call, args)
	}
}

var registered = map[string]Task{
	CreateVolumeTask: {
		Name: CreateVolumeTask, Title: "Create Tale Data Volume",
		Handler: handle(CreateVolume),
	},
	LaunchContainerTask: {
		Name: LaunchContainerTask, Title: "Spawn Instance",
		Handler: handle(LaunchContainer),
	},
	UpdateContainerTask: {
		Name: UpdateContainerTask, Title: "Update Instance",
		Handler: handle(UpdateContainer),
	},
	ShutdownContainerTask: {
		Name: ShutdownContainerTask, Title: "Shutdown Instance",
		Handler: handle(ShutdownContainer),
	},
	RemoveVolumeTask: {
		Name: RemoveVolumeTask, Title: "Remove Tale Data Volume",
		Handler: handle(RemoveVolume),
	},
	BuildTaleImageTask: {
		Name: BuildTaleImageTask, Title: "Build Tale Image",
		Handler: handle(BuildTaleImage),
	},
	PublishTask: {
		Name: PublishTask, Title: "Publish Tale",
		Handler: handle(Publish),
	},
	ImportTaleTask: {
		Name: ImportTaleTask, Title: "Import Tale",
		Handler: handle(ImportTale),
	},
}

// Lookup finds a task by name.
func Lookup(name string) (Task, bool) {
	t, ok := registered[name]
	return t, ok
}

// All returns all tasks, sorted by name.
func All() []Task {
	ret := make([]Task, 0, len(registered))
	for _, t := range registered {
		ret = append(ret, t)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// Names returns names of all tasks.
func Names() []string {
	all := All()
	ret := make([]string, 0, len(all))
	for _, t := range all {
		ret = append(ret, t.Name)
	}
	return ret
}

// UserError is a failure which should be told to the user as it is.
type UserError struct {
	Message string
	Err     error
}

func NewUserError(message string, cause error) *UserError {
	return &UserError{Message: message, Err: cause}
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// MessageOf returns a message of err to be shown to the user.
func MessageOf(err error) string {
	if ue := new(UserError); errors.As(err, &ue) {
		return ue.Message
	}
	return xe.Message(err)
}
