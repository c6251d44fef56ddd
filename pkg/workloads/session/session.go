// Package session runs interactive tale sessions: a Deployment serving the
// tale image, with a Service and an Ingress routing "{host}.{domain}" to it.
//
// The three resources share one name, the host name of the session.
package session

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
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s/k8serrors"
	"github.com/whole-tale/gwvolman/pkg/workloads/metasource"
	"github.com/whole-tale/gwvolman/pkg/workloads/volume"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// ContainerName is the name of the container serving a tale.
const ContainerName = "tale"

// EntrypointsAnnotation tells traefik which entrypoints route to a session.
const EntrypointsAnnotation = "traefik.ingress.kubernetes.io/router.entrypoints"

// Builder describes a session.
type Builder struct {
	// Host is the host name of the session, like "tmp-abcdefghijkl".
	Host string

	Image string

	// Args overrides the command of the image. Empty means the image default.
	Args []string

	// Env is a list of "KEY=VALUE".
	Env []string

	Port int32

	// MemLimit is the memory limit in bytes. Zero means no limit.
	MemLimit int64

	// Volume is the name of the tale volume.
	Volume string

	// TargetMount is where the subdirectories of the volume are mounted.
	TargetMount string

	// Node is the node where the session runs, where the volume is.
	Node string

	TaleID     string
	InstanceID string
}

// Spec is a set of k8s resources of a session.
type Spec struct {
	Deployment *kubeapps.Deployment
	Service    *kubecore.Service
	Ingress    *kubenet.Ingress
}

// Config is what sessions need from the configuration.
type Config struct {
	Cluster    *gwvconf.ClusterConfig
	Domain     string
	Entrypoint string
}

var _ metasource.ResourceBuilder[Config, Spec] = Builder{}

func (b Builder) Name() string {
	return "tale-session"
}

func (b Builder) Instance() string {
	return b.Host
}

func (b Builder) Component() string {
	return "session"
}

func (b Builder) Extras() map[string]string {
	return map[string]string{"tale": b.TaleID, "instance": b.InstanceID}
}

// FQDN is the public host name of the session.
func FQDN(host string, domain string) string {
	return host + "." + domain
}

func (b Builder) Build(conf Config) Spec {
	meta := metasource.ToObjectMeta(b, conf.Cluster.Namespace())
	selector := map[string]string{
		"app.kubernetes.io/name":     b.Name(),
		"app.kubernetes.io/instance": b.Instance(),
	}

	env := make([]kubecore.EnvVar, 0, len(b.Env))
	for _, kv := range b.Env {
		k, v, _ := strings.Cut(kv, "=")
		env = append(env, kubecore.EnvVar{Name: k, Value: v})
	}

	propagation := kubecore.MountPropagationHostToContainer
	mounts := make([]kubecore.VolumeMount, 0, len(volume.Mountpoints))
	for _, mp := range volume.Mountpoints {
		mounts = append(mounts, kubecore.VolumeMount{
			Name:             "tale-volume",
			MountPath:        path.Join(b.TargetMount, mp),
			SubPath:          mp,
			MountPropagation: &propagation,
		})
	}

	resources := kubecore.ResourceRequirements{}
	if b.MemLimit > 0 {
		resources.Limits = kubecore.ResourceList{
			kubecore.ResourceMemory: *resource.NewQuantity(b.MemLimit, resource.BinarySI),
		}
	}

	replicas := int32(1)
	deployment := &kubeapps.Deployment{
		ObjectMeta: meta,
		Spec: kubeapps.DeploymentSpec{
			Replicas: &replicas,
			Selector: &kubeapimeta.LabelSelector{MatchLabels: selector},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: meta.Labels},
				Spec: kubecore.PodSpec{
					NodeName: b.Node,
					Containers: []kubecore.Container{
						{
							Name:         ContainerName,
							Image:        b.Image,
							Args:         b.Args,
							Env:          env,
							Ports:        []kubecore.ContainerPort{{Name: "http", ContainerPort: b.Port}},
							VolumeMounts: mounts,
							Resources:    resources,
						},
					},
					Volumes: []kubecore.Volume{
						{
							Name: "tale-volume",
							VolumeSource: kubecore.VolumeSource{
								PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
									ClaimName: b.Volume,
								},
							},
						},
					},
				},
			},
		},
	}

	service := &kubecore.Service{
		ObjectMeta: meta,
		Spec: kubecore.ServiceSpec{
			Type:     kubecore.ServiceTypeClusterIP,
			Selector: selector,
			Ports: []kubecore.ServicePort{
				{Name: "http", Port: b.Port, TargetPort: intstr.FromString("http")},
			},
		},
	}

	host := FQDN(b.Host, conf.Domain)
	ingressClass := conf.Cluster.Session().IngressClassName()
	pathType := kubenet.PathTypePrefix
	ingMeta := meta
	ingMeta.Annotations = map[string]string{EntrypointsAnnotation: conf.Entrypoint}
	ingress := &kubenet.Ingress{
		ObjectMeta: ingMeta,
		Spec: kubenet.IngressSpec{
			IngressClassName: &ingressClass,
			Rules: []kubenet.IngressRule{
				{
					Host: host,
					IngressRuleValue: kubenet.IngressRuleValue{
						HTTP: &kubenet.HTTPIngressRuleValue{
							Paths: []kubenet.HTTPIngressPath{
								{
									Path:     "/",
									PathType: &pathType,
									Backend: kubenet.IngressBackend{
										Service: &kubenet.IngressServiceBackend{
											Name: b.Host,
											Port: kubenet.ServiceBackendPort{Number: b.Port},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
	if conf.Entrypoint == "https" {
		ingress.Spec.TLS = []kubenet.IngressTLS{{Hosts: []string{host}}}
	}

	return Spec{Deployment: deployment, Service: service, Ingress: ingress}
}

// Session is a launched session.
type Session interface {
	// Name is the name of the session, which is also its host name.
	Name() string

	// Ready is true when the session is serving.
	Ready() bool
}

type session struct {
	name  string
	ready bool
}

func (s *session) Name() string {
	return s.name
}

func (s *session) Ready() bool {
	return s.ready
}

// Launch creates a session and waits until it is ready or readyTimeout is elapsed.
//
// Not getting ready in time is not an error; the session stays.
// When creating any of the resources fails, created resources are deleted.
func Launch(
	ctx context.Context, cluster k8s.Cluster, conf Config, b Builder,
	readyTimeout time.Duration, pollInterval time.Duration,
) (Session, error) {
	spec := b.Build(conf)

	svc, err := retry.Await(
		ctx,
		cluster.NewService(ctx, retry.StaticBackoff(pollInterval), spec.Service),
	)
	if err != nil {
		return nil, err
	}

	ing, err := cluster.NewIngress(ctx, spec.Ingress)
	if err != nil {
		return nil, errors.Join(err, svc.Close())
	}

	wctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	_, err = retry.Await(
		wctx,
		cluster.NewDeployment(wctx, retry.StaticBackoff(pollInterval), spec.Deployment),
	)
	switch {
	case err == nil:
		return &session{name: b.Host, ready: true}, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		if _, gerr := cluster.GetDeployment(ctx, b.Host); gerr == nil {
			return &session{name: b.Host, ready: false}, nil
		}
	}
	return nil, errors.Join(
		err,
		ignoreMissing(cluster.DeleteDeployment(context.Background(), b.Host)),
		ing.Close(),
		svc.Close(),
	)
}

// Image returns the image of the session.
func Image(ctx context.Context, cluster k8s.Cluster, name string) (string, error) {
	dpl, err := cluster.GetDeployment(ctx, name)
	if err != nil {
		return "", err
	}
	return dpl.Image(ContainerName), nil
}

// UpdateImage replaces the image of the session.
//
// A missing session is reported as k8serrors.ErrMissing.
func UpdateImage(ctx context.Context, cluster k8s.Cluster, name string, image string) error {
	_, err := cluster.UpdateDeployment(ctx, name, func(d *kubeapps.Deployment) error {
		for i := range d.Spec.Template.Spec.Containers {
			c := &d.Spec.Template.Spec.Containers[i]
			if c.Name == ContainerName {
				c.Image = image
				return nil
			}
		}
		return fmt.Errorf("deployment %s has no container %s", name, ContainerName)
	})
	return err
}

// Exists tells whether the session is there.
func Exists(ctx context.Context, cluster k8s.Cluster, name string) (bool, error) {
	_, err := cluster.GetDeployment(ctx, name)
	if err == nil {
		return true, nil
	}
	if k8serrors.AsMissingError(err) {
		return false, nil
	}
	return false, err
}

// Remove deletes resources of the session. Missing ones are skipped.
func Remove(ctx context.Context, cluster k8s.Cluster, name string) error {
	return errors.Join(
		ignoreMissing(cluster.DeleteIngress(ctx, name)),
		ignoreMissing(cluster.DeleteService(ctx, name)),
		ignoreMissing(cluster.DeleteDeployment(ctx, name)),
	)
}

func ignoreMissing(err error) error {
	if k8serrors.AsMissingError(err) {
		return nil
	}
	return err
}
