package mock

import (
	"context"
	"errors"
	"io"

	k8s "github.com/whole-tale/gwvolman/pkg/workloads/k8s"
	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
)

// get mocked k8s.Cluster
//
// # returns
//
//   - k8s.Cluster : using *MockClient as base client
//   - *MockClient : mock object.
//     you can fake k8s behaviours or spy its usage.
func NewCluster() (k8s.Cluster, *MockClient) {
	clientset := NewMockClient()

	namespace := "fake-namespace"
	domain := "fake.local"

	return k8s.AttachCluster(clientset, namespace, domain), clientset
}

// ErrNotImplemented is returned by MockClient methods without Impl.
var ErrNotImplemented = errors.New("[MOCK] not implemented")

type MockClient struct {
	Impl struct {
		GetService    func(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error)
		CreateService func(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)
		DeleteService func(ctx context.Context, namespace string, svcname string) error

		GetPVC    func(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error)
		CreatePVC func(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error)
		DeletePVC func(ctx context.Context, namespace string, pvcname string) error

		GetPV func(ctx context.Context, pvname string) (*kubecore.PersistentVolume, error)

		GetDeployment    func(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)
		CreateDeployment func(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
		UpdateDeployment func(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
		DeleteDeployment func(ctx context.Context, namespace string, deplname string) error

		GetIngress    func(ctx context.Context, namespace string, name string) (*kubenet.Ingress, error)
		CreateIngress func(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error)
		DeleteIngress func(ctx context.Context, namespace string, name string) error

		GetJob    func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
		CreateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		DeleteJob func(ctx context.Context, namespace string, name string) error

		FindPods func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error)

		Log func(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error)
	}
	Called struct {
		GetService    uint64
		CreateService uint64
		DeleteService uint64

		GetPVC    uint64
		CreatePVC uint64
		DeletePVC uint64

		GetPV uint64

		GetDeployment    uint64
		CreateDeployment uint64
		UpdateDeployment uint64
		DeleteDeployment uint64

		GetIngress    uint64
		CreateIngress uint64
		DeleteIngress uint64

		GetJob    uint64
		CreateJob uint64
		DeleteJob uint64

		FindPods uint64

		Log uint64
	}
}

// MockClient implements k8s.K8sClient
var _ k8s.K8sClient = &MockClient{}

func (m *MockClient) GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error) {
	m.Called.GetService += 1
	if m.Impl.GetService == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.GetService(ctx, namespace, svcname)
}

func (m *MockClient) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	m.Called.CreateService += 1
	if m.Impl.CreateService == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.CreateService(ctx, namespace, svc)
}

func (m *MockClient) DeleteService(ctx context.Context, namespace string, svcname string) error {
	m.Called.DeleteService += 1
	if m.Impl.DeleteService == nil {
		return ErrNotImplemented
	}
	return m.Impl.DeleteService(ctx, namespace, svcname)
}

func (m *MockClient) GetPVC(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error) {
	m.Called.GetPVC += 1
	if m.Impl.GetPVC == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.GetPVC(ctx, namespace, pvcname)
}

func (m *MockClient) CreatePVC(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error) {
	m.Called.CreatePVC += 1
	if m.Impl.CreatePVC == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.CreatePVC(ctx, namespace, pvc)
}

func (m *MockClient) DeletePVC(ctx context.Context, namespace string, pvcname string) error {
	m.Called.DeletePVC += 1
	if m.Impl.DeletePVC == nil {
		return ErrNotImplemented
	}
	return m.Impl.DeletePVC(ctx, namespace, pvcname)
}

func (m *MockClient) GetPV(ctx context.Context, pvname string) (*kubecore.PersistentVolume, error) {
	m.Called.GetPV += 1
	if m.Impl.GetPV == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.GetPV(ctx, pvname)
}

func (m *MockClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	m.Called.GetDeployment += 1
	if m.Impl.GetDeployment == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.GetDeployment(ctx, namespace, deplname)
}

func (m *MockClient) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	m.Called.CreateDeployment += 1
	if m.Impl.CreateDeployment == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.CreateDeployment(ctx, namespace, depl)
}

func (m *MockClient) UpdateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	m.Called.UpdateDeployment += 1
	if m.Impl.UpdateDeployment == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.UpdateDeployment(ctx, namespace, depl)
}

func (m *MockClient) DeleteDeployment(ctx context.Context, namespace string, deplname string) error {
	m.Called.DeleteDeployment += 1
	if m.Impl.DeleteDeployment == nil {
		return ErrNotImplemented
	}
	return m.Impl.DeleteDeployment(ctx, namespace, deplname)
}

func (m *MockClient) GetIngress(ctx context.Context, namespace string, name string) (*kubenet.Ingress, error) {
	m.Called.GetIngress += 1
	if m.Impl.GetIngress == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.GetIngress(ctx, namespace, name)
}

func (m *MockClient) CreateIngress(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error) {
	m.Called.CreateIngress += 1
	if m.Impl.CreateIngress == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.CreateIngress(ctx, namespace, ing)
}

func (m *MockClient) DeleteIngress(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteIngress += 1
	if m.Impl.DeleteIngress == nil {
		return ErrNotImplemented
	}
	return m.Impl.DeleteIngress(ctx, namespace, name)
}

func (m *MockClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	m.Called.GetJob += 1
	if m.Impl.GetJob == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.GetJob(ctx, namespace, name)
}

func (m *MockClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.Called.CreateJob += 1
	if m.Impl.CreateJob == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.CreateJob(ctx, namespace, job)
}

func (m *MockClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteJob += 1
	if m.Impl.DeleteJob == nil {
		return ErrNotImplemented
	}
	return m.Impl.DeleteJob(ctx, namespace, name)
}

func (m *MockClient) FindPods(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
	m.Called.FindPods += 1
	if m.Impl.FindPods == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.FindPods(ctx, namespace, ls)
}

func (m *MockClient) Log(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error) {
	m.Called.Log += 1
	if m.Impl.Log == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.Log(ctx, namespace, pod, container)
}

func NewMockClient() *MockClient {
	return &MockClient{}
}
