// Package volume provisions tale volumes: node-local PVCs which girderfs
// mounts are placed in.
package volume

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	gwvconf "github.com/whole-tale/gwvolman/pkg/configs/gwvolman"
	"github.com/whole-tale/gwvolman/pkg/utils/retry"
	k8s "github.com/whole-tale/gwvolman/pkg/workloads/k8s"
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s/k8serrors"
	"github.com/whole-tale/gwvolman/pkg/workloads/metasource"
	kubecore "k8s.io/api/core/v1"
)

// SelectedNodeAnnotation pins the volume to a node.
const SelectedNodeAnnotation = "volume.kubernetes.io/selected-node"

// Subdirectories of a tale volume, each is a girderfs mountpoint.
const (
	Data      = "data"
	Home      = "home"
	Workspace = "workspace"
)

// Mountpoints lists subdirectories of a tale volume in mount order.
var Mountpoints = []string{Data, Home, Workspace}

// Builder describes a tale volume.
type Builder struct {
	instance   string
	taleId     string
	instanceId string
	node       string
}

var _ metasource.ResourceBuilder[*gwvconf.ClusterConfig, *kubecore.PersistentVolumeClaim] = Builder{}

// Of returns a Builder of the volume for an Instance of a Tale.
//
// The volume is named "{taleId}-{login}-{suffix}", normalized into a DNS-1123 label.
func Of(taleId string, instanceId string, login string, suffix string, node string) Builder {
	return Builder{
		instance:   NormalizeName(fmt.Sprintf("%s-%s-%s", taleId, login, suffix)),
		taleId:     taleId,
		instanceId: instanceId,
		node:       node,
	}
}

func (b Builder) Name() string {
	return "tale-volume"
}

func (b Builder) Instance() string {
	return b.instance
}

func (b Builder) Component() string {
	return "volume"
}

func (b Builder) Extras() map[string]string {
	return map[string]string{"tale": b.taleId, "instance": b.instanceId}
}

func (b Builder) Build(conf *gwvconf.ClusterConfig) *kubecore.PersistentVolumeClaim {
	meta := metasource.ToObjectMeta(b, conf.Namespace())
	meta.Annotations = map[string]string{SelectedNodeAnnotation: b.node}

	sc := conf.Volume().StorageClassName()
	return &kubecore.PersistentVolumeClaim{
		ObjectMeta: meta,
		Spec: kubecore.PersistentVolumeClaimSpec{
			AccessModes:      []kubecore.PersistentVolumeAccessMode{kubecore.ReadWriteOnce},
			StorageClassName: &sc,
			Resources: kubecore.VolumeResourceRequirements{
				Requests: kubecore.ResourceList{
					kubecore.ResourceStorage: conf.Volume().Capacity(),
				},
			},
		},
	}
}

var invalidChars = regexp.MustCompile(`[^a-z0-9-]+`)

// NormalizeName makes s a DNS-1123 label: lower case alphanumerics and '-',
// starting and ending with an alphanumeric, at most 63 characters.
func NormalizeName(s string) string {
	n := invalidChars.ReplaceAllString(strings.ToLower(s), "-")
	if len(n) > 63 {
		n = n[:63]
	}
	return strings.Trim(n, "-")
}

// Volume is a provisioned tale volume.
type Volume interface {
	Name() string

	// MountPoint is the path of the volume on its node.
	MountPoint() string

	// Remove deletes the volume.
	Remove() error
}

type volume struct {
	pvc        k8s.PVC
	mountpoint string
}

func (v *volume) Name() string {
	return v.pvc.Name()
}

func (v *volume) MountPoint() string {
	return v.mountpoint
}

func (v *volume) Remove() error {
	return v.pvc.Close()
}

// Provision creates the volume and waits until it is bound.
//
// When it is not bound in the bind timeout of the volume config, the volume is
// deleted and k8serrors.ErrDeadlineExceeded is returned.
func Provision(ctx context.Context, cluster k8s.Cluster, conf *gwvconf.ClusterConfig, b Builder) (Volume, error) {
	wctx, cancel := context.WithTimeout(ctx, conf.Volume().BindTimeout())
	defer cancel()
	pvc, err := retry.Await(
		wctx,
		cluster.NewPVC(wctx, retry.StaticBackoff(500*time.Millisecond), b.Build(conf)),
	)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: volume %s is not bound", k8serrors.ErrDeadlineExceeded, b.Name())
			if derr := cluster.DeletePVC(ctx, b.Name()); derr != nil && !k8serrors.AsMissingError(derr) {
				return nil, fmt.Errorf("%w (and cannot delete the pvc: %s)", err, derr)
			}
		}
		return nil, err
	}

	mp, err := cluster.HostPath(ctx, pvc)
	if err != nil {
		if cerr := pvc.Close(); cerr != nil {
			return nil, fmt.Errorf("%w (and cannot delete the pvc: %s)", err, cerr)
		}
		return nil, err
	}
	return &volume{pvc: pvc, mountpoint: mp}, nil
}

// Remove deletes the volume named so.
//
// A missing volume is reported as k8serrors.ErrMissing.
func Remove(ctx context.Context, cluster k8s.Cluster, name string) error {
	return cluster.DeletePVC(ctx, name)
}
