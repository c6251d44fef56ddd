package volume_test

import (
	"context"
	"errors"
	"testing"

	"github.com/whole-tale/gwvolman/internal/testutils/config"
	"github.com/whole-tale/gwvolman/pkg/utils/try"
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s/k8serrors"
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s/mock"
	"github.com/whole-tale/gwvolman/pkg/workloads/volume"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestNormalizeName(t *testing.T) {
	for input, expected := range map[string]string{
		"5c8fe826da39aa00013e9609-alice-abc123": "5c8fe826da39aa00013e9609-alice-abc123",
		"Tale-Bob.Smith-XyZ":                    "tale-bob-smith-xyz",
		"-under_score-":                         "under-score",
		"0123456789012345678901234567890123456789012345678901234567890123456789": "012345678901234567890123456789012345678901234567890123456789012",
	} {
		t.Run(input, func(t *testing.T) {
			if actual := volume.NormalizeName(input); actual != expected {
				t.Errorf("unexpected name: (actual, expected) = (%s, %s)", actual, expected)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	conf := config.New(t)
	testee := volume.Of("tale1", "inst1", "Alice", "AbCdEf", "node-1")

	actual := testee.Build(conf.Cluster())

	if actual.Name != "tale1-alice-abcdef" {
		t.Errorf("unexpected name: %s", actual.Name)
	}
	if actual.Namespace != "wt" {
		t.Errorf("unexpected namespace: %s", actual.Namespace)
	}
	if actual.Annotations[volume.SelectedNodeAnnotation] != "node-1" {
		t.Errorf("volume is not pinned: %v", actual.Annotations)
	}
	if sc := actual.Spec.StorageClassName; sc == nil || *sc != "local-path" {
		t.Errorf("unexpected storage class: %v", sc)
	}
	if q := actual.Spec.Resources.Requests[kubecore.ResourceStorage]; !q.Equal(resource.MustParse("1Gi")) {
		t.Errorf("unexpected capacity: %v", q)
	}
	for k, v := range map[string]string{
		"app.kubernetes.io/instance":  "tale1-alice-abcdef",
		"app.kubernetes.io/component": "volume",
		"wholetale.org/tale":          "tale1",
		"wholetale.org/instance":      "inst1",
	} {
		if actual.Labels[k] != v {
			t.Errorf("label %s: (actual, expected) = (%s, %s)", k, actual.Labels[k], v)
		}
	}
}

func TestProvision(t *testing.T) {
	conf := config.New(t)

	t.Run("it returns volume with its mountpoint", func(t *testing.T) {
		cluster, client := mock.NewCluster()
		client.Impl.CreatePVC = func(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error) {
			ret := pvc.DeepCopy()
			ret.Spec.VolumeName = "pv-1"
			ret.Status.Phase = kubecore.ClaimBound
			return ret, nil
		}
		client.Impl.GetPV = func(ctx context.Context, pvname string) (*kubecore.PersistentVolume, error) {
			return &kubecore.PersistentVolume{
				ObjectMeta: kubeapimeta.ObjectMeta{Name: pvname},
				Spec: kubecore.PersistentVolumeSpec{
					PersistentVolumeSource: kubecore.PersistentVolumeSource{
						HostPath: &kubecore.HostPathVolumeSource{Path: "/var/lib/wt/pv-1"},
					},
				},
			}, nil
		}

		actual := try.To(volume.Provision(
			context.Background(), cluster, conf.Cluster(),
			volume.Of("tale1", "inst1", "alice", "abcdef", "node-1"),
		)).OrFatal(t)

		if actual.Name() != "tale1-alice-abcdef" {
			t.Errorf("unexpected name: %s", actual.Name())
		}
		if actual.MountPoint() != "/var/lib/wt/pv-1" {
			t.Errorf("unexpected mountpoint: %s", actual.MountPoint())
		}
	})

	t.Run("when the host path is unknown, it deletes the pvc", func(t *testing.T) {
		cluster, client := mock.NewCluster()
		client.Impl.CreatePVC = func(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error) {
			ret := pvc.DeepCopy()
			ret.Spec.VolumeName = "pv-1"
			ret.Status.Phase = kubecore.ClaimBound
			return ret, nil
		}
		expected := errors.New("fake")
		client.Impl.GetPV = func(ctx context.Context, pvname string) (*kubecore.PersistentVolume, error) {
			return nil, expected
		}
		client.Impl.DeletePVC = func(ctx context.Context, namespace string, pvcname string) error {
			return nil
		}

		_, err := volume.Provision(
			context.Background(), cluster, conf.Cluster(),
			volume.Of("tale1", "inst1", "alice", "abcdef", "node-1"),
		)
		if !errors.Is(err, expected) {
			t.Errorf("unexpected error: %v", err)
		}
		if client.Called.DeletePVC != 1 {
			t.Errorf("pvc is not deleted")
		}
	})

	t.Run("when the pvc is not bound in time, it deletes the pvc", func(t *testing.T) {
		cluster, client := mock.NewCluster()
		client.Impl.CreatePVC = func(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error) {
			return pvc.DeepCopy(), nil
		}
		client.Impl.GetPVC = func(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error) {
			return &kubecore.PersistentVolumeClaim{
				ObjectMeta: kubeapimeta.ObjectMeta{Name: pvcname, Namespace: namespace},
				Status:     kubecore.PersistentVolumeClaimStatus{Phase: kubecore.ClaimPending},
			}, nil
		}
		deleted := ""
		client.Impl.DeletePVC = func(ctx context.Context, namespace string, pvcname string) error {
			deleted = pvcname
			return nil
		}

		_, err := volume.Provision(
			context.Background(), cluster, conf.Cluster(),
			volume.Of("tale1", "inst1", "alice", "abcdef", "node-1"),
		)
		if !errors.Is(err, k8serrors.ErrDeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
		if deleted != "tale1-alice-abcdef" {
			t.Errorf("pvc is not deleted: %q", deleted)
		}
	})
}

func TestRemove(t *testing.T) {
	cluster, client := mock.NewCluster()
	client.Impl.DeletePVC = func(ctx context.Context, namespace string, pvcname string) error {
		return kubeerr.NewNotFound(schema.GroupResource{Resource: "persistentvolumeclaims"}, pvcname)
	}

	err := volume.Remove(context.Background(), cluster, "tale1-alice-abcdef")
	if !k8serrors.AsMissingError(err) {
		t.Errorf("unexpected error: %v", err)
	}
}
