package build

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	gwvconf "github.com/whole-tale/gwvolman/pkg/configs/gwvolman"
	"github.com/whole-tale/gwvolman/pkg/utils/retry"
	k8s "github.com/whole-tale/gwvolman/pkg/workloads/k8s"
	"github.com/whole-tale/gwvolman/pkg/workloads/metasource"
	"github.com/whole-tale/gwvolman/pkg/workloads/volume"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
)

// ContainerName is the name of the container running repo2docker.
const ContainerName = "repo2docker"

const (
	mountWorkDir     = "/build"
	dockerSocketPath = "/var/run/docker.sock"
)

// JobBuilder describes a Job running a build.
type JobBuilder struct {
	instance string
	taleId   string

	// hostWorkDir is the work directory on the node.
	hostWorkDir string
	tag         string
}

// JobConfig is what build Jobs need from the configuration.
type JobConfig struct {
	Cluster *gwvconf.ClusterConfig
	Build   *gwvconf.BuildConfig
}

var _ metasource.ResourceBuilder[JobConfig, *kubebatch.Job] = JobBuilder{}

// JobOf returns a JobBuilder of a build.
//
// hostDir is where the root of the node is mounted in gwvolman.
func JobOf(req Request, hostDir string, suffix string) JobBuilder {
	hostWorkDir := req.WorkDir
	if hostDir != "" && hostDir != "/" {
		hostWorkDir = "/" + strings.TrimPrefix(strings.TrimPrefix(req.WorkDir, hostDir), "/")
	}
	return JobBuilder{
		instance:    volume.NormalizeName("build-" + req.TaleID + "-" + suffix),
		taleId:      req.TaleID,
		hostWorkDir: hostWorkDir,
		tag:         req.Tag,
	}
}

func (b JobBuilder) Name() string {
	return "tale-image-build"
}

func (b JobBuilder) Instance() string {
	return b.instance
}

func (b JobBuilder) Component() string {
	return "build"
}

func (b JobBuilder) Extras() map[string]string {
	return map[string]string{"tale": b.taleId}
}

func (b JobBuilder) Build(conf JobConfig) *kubebatch.Job {
	meta := metasource.ToObjectMeta(b, conf.Cluster.Namespace())
	backoffLimit := int32(0)
	hostPathDir := kubecore.HostPathDirectory
	hostPathSocket := kubecore.HostPathSocket

	return &kubebatch.Job{
		ObjectMeta: meta,
		Spec: kubebatch.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: metasource.ToObjectMeta(b, conf.Cluster.Namespace()),
				Spec: kubecore.PodSpec{
					RestartPolicy: kubecore.RestartPolicyNever,
					NodeName:      conf.Cluster.NodeName(),
					Containers: []kubecore.Container{
						{
							Name:    ContainerName,
							Image:   conf.Build.Image(),
							Command: []string{conf.Build.Command()},
							Args:    Args(b.tag, path.Join(mountWorkDir, RepoDir)),
							Env: []kubecore.EnvVar{
								{Name: "DOCKER_CONFIG", Value: path.Join(mountWorkDir, DockerConfigDir)},
							},
							VolumeMounts: []kubecore.VolumeMount{
								{Name: "workdir", MountPath: mountWorkDir},
								{Name: "docker-socket", MountPath: dockerSocketPath},
							},
						},
					},
					Volumes: []kubecore.Volume{
						{
							Name: "workdir",
							VolumeSource: kubecore.VolumeSource{
								HostPath: &kubecore.HostPathVolumeSource{Path: b.hostWorkDir, Type: &hostPathDir},
							},
						},
						{
							Name: "docker-socket",
							VolumeSource: kubecore.VolumeSource{
								HostPath: &kubecore.HostPathVolumeSource{Path: dockerSocketPath, Type: &hostPathSocket},
							},
						},
					},
				},
			},
		},
	}
}

type inCluster struct {
	cluster      k8s.Cluster
	conf         JobConfig
	hostDir      string
	suffix       func() string
	pollInterval time.Duration
}

// InCluster runs repo2docker as a k8s Job on the node of gwvolman.
//
// suffix generates a random suffix of Job names.
func InCluster(cluster k8s.Cluster, conf JobConfig, hostDir string, suffix func() string) Builder {
	return &inCluster{
		cluster: cluster, conf: conf, hostDir: hostDir, suffix: suffix,
		pollInterval: 2 * time.Second,
	}
}

// jobHasStarted is satisfied when any pod of the Job is running or stopped.
var jobHasStarted k8s.Requirement[*kubebatch.Job] = func(value *kubebatch.Job) error {
	if value.Status.Active > 0 || value.Status.Succeeded > 0 || value.Status.Failed > 0 {
		return nil
	}
	return retry.ErrRetry
}

func (ic *inCluster) Build(ctx context.Context, req Request, logline func(string)) error {
	spec := JobOf(req, ic.hostDir, ic.suffix()).Build(ic.conf)

	started, err := retry.Await(
		ctx,
		ic.cluster.NewJob(ctx, retry.StaticBackoff(ic.pollInterval), spec, jobHasStarted),
	)
	if err != nil {
		return err
	}
	defer started.Close()

	if log, err := started.Log(ctx, ContainerName); err == nil {
		serr := scanLines(log, logline)
		log.Close()
		if serr != nil {
			logline(fmt.Sprintf("[gwvolman] log is broken: %s", serr))
		}
	} else {
		logline(fmt.Sprintf("[gwvolman] cannot read log: %s", err))
	}

	finished, err := retry.Await(
		ctx,
		ic.cluster.GetJob(ctx, retry.StaticBackoff(ic.pollInterval), spec.Name, k8s.JobHasFinished),
	)
	if err != nil {
		return err
	}

	if finished.Status() == k8s.Succeeded {
		return nil
	}
	if code, reason, ok := finished.ExitCode(ContainerName); ok {
		return fmt.Errorf("repo2docker exited with %d (%s)", code, reason)
	}
	return errors.New("repo2docker job has failed")
}
