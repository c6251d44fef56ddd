package k8s

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapiresouce "k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"

	"github.com/whole-tale/gwvolman/pkg/utils/retry"
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s/k8serrors"
)

// subset of k8s.Clientset
type K8sClient interface {
	GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error)
	CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)
	DeleteService(ctx context.Context, namespace string, svcname string) error

	GetPVC(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error)
	CreatePVC(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error)
	DeletePVC(ctx context.Context, namespace string, pvcname string) error

	GetPV(ctx context.Context, pvname string) (*kubecore.PersistentVolume, error)

	GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)
	CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
	UpdateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
	DeleteDeployment(ctx context.Context, namespace string, deplname string) error

	GetIngress(ctx context.Context, namespace string, name string) (*kubenet.Ingress, error)
	CreateIngress(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error)
	DeleteIngress(ctx context.Context, namespace string, name string) error

	GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
	CreateJob(ctx context.Context, namespace string, spec *kubebatch.Job) (*kubebatch.Job, error)
	DeleteJob(ctx context.Context, namespace string, name string) error

	FindPods(ctx context.Context, namespace string, labelSelector LabelSelector) ([]kubecore.Pod, error)

	Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error)
}

// A wrapper for the type k8s.Clientset; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client k8s.Interface
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func WrapK8sClient(c k8s.Interface) K8sClient {
	return &k8sClient{client: c}
}

func (k *k8sClient) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	return k.client.CoreV1().Services(namespace).Create(ctx, svc, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error) {
	return k.client.CoreV1().Services(namespace).Get(ctx, svcname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) DeleteService(ctx context.Context, namespace string, svcname string) error {
	return k.client.CoreV1().Services(namespace).Delete(ctx, svcname, *kubeapimeta.NewDeleteOptions(0))
}

func (k *k8sClient) CreatePVC(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error) {
	return k.client.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetPVC(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error) {
	return k.client.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, pvcname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) DeletePVC(ctx context.Context, namespace string, pvcname string) error {
	return k.client.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, pvcname, *kubeapimeta.NewDeleteOptions(0))
}

func (k *k8sClient) GetPV(ctx context.Context, pvname string) (*kubecore.PersistentVolume, error) {
	return k.client.CoreV1().PersistentVolumes().Get(ctx, pvname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Create(ctx, depl, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Get(ctx, deplname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) UpdateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Update(ctx, depl, kubeapimeta.UpdateOptions{})
}

func (k *k8sClient) DeleteDeployment(ctx context.Context, namespace string, deplname string) error {
	foreground := kubeapimeta.DeletePropagationForeground
	return k.client.AppsV1().Deployments(namespace).Delete(ctx, deplname, kubeapimeta.DeleteOptions{
		PropagationPolicy: &foreground,
	})
}

func (k *k8sClient) CreateIngress(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error) {
	return k.client.NetworkingV1().Ingresses(namespace).Create(ctx, ing, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetIngress(ctx context.Context, namespace string, name string) (*kubenet.Ingress, error) {
	return k.client.NetworkingV1().Ingresses(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) DeleteIngress(ctx context.Context, namespace string, name string) error {
	return k.client.NetworkingV1().Ingresses(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{})
}

func (k *k8sClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	foreground := kubeapimeta.DeletePropagationForeground
	zero := int64(0)
	return k.client.BatchV1().Jobs(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{
		GracePeriodSeconds: &zero,
		PropagationPolicy:  &foreground,
	})
}

func (k *k8sClient) FindPods(ctx context.Context, namespace string, labels LabelSelector) ([]kubecore.Pod, error) {
	resp, err := k.client.CoreV1().Pods(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: labels.QueryString(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error) {
	return k.client.
		CoreV1().
		Pods(namespace).
		GetLogs(podname, &kubecore.PodLogOptions{Container: container, Follow: true}).
		Stream(ctx)
}

// Abstraction of k8s Service
type Service interface {
	Namespace() string
	Name() string

	// get service domain name.
	Host() string

	// get named port number.
	Port(name string) int32

	// release resources.
	//
	// Delete service.
	Close() error
}

type service struct {
	resource *kubecore.Service
	domain   string
	close    func() error
}

func (s *service) Namespace() string {
	return s.resource.GetNamespace()
}

func (s *service) Name() string {
	return s.resource.GetName()
}

func (s *service) Host() string {
	return fmt.Sprintf("%s.%s.svc.%s", s.Name(), s.Namespace(), s.domain)
}

// Get port number named as parameter `name`
//
// If not found, return `0`.
func (s *service) Port(name string) int32 {
	for _, p := range s.resource.Spec.Ports {
		if p.Name == name {
			return p.Port
		}
	}
	return 0
}

func (s *service) Close() error {
	return s.close()
}

// Abstraction of k8s Deployment
type Deployment interface {
	Name() string
	Namespace() string

	// image of the named container. Empty if there are no such container.
	Image(container string) string

	// Ready is true when all desired replicas are available.
	Ready() bool

	// release resources.
	//
	// Delete deployment and related pods
	Close() error
}

type deployment struct {
	resource *kubeapps.Deployment
	onClose  func() error
}

func (d *deployment) Namespace() string {
	return d.resource.GetNamespace()
}

func (d *deployment) Name() string {
	return d.resource.GetName()
}

func (d *deployment) Image(container string) string {
	for _, c := range d.resource.Spec.Template.Spec.Containers {
		if c.Name == container {
			return c.Image
		}
	}
	return ""
}

func (d *deployment) Ready() bool {
	return EnoughReplicas(d.resource) == nil
}

func (d *deployment) Close() error {
	if d.onClose == nil {
		return nil
	}
	return d.onClose()
}

// Abstraction of Persistent Volume Claim
type PVC interface {
	Name() string
	Namespace() string
	VolumeName() string

	// Capacity in claim.
	ClaimedCapacity() kubeapiresouce.Quantity

	// destroy PVC.
	Close() error
}

type pvc struct {
	resource *kubecore.PersistentVolumeClaim
	onClose  func() error
}

func (p *pvc) Name() string {
	return p.resource.GetName()
}

func (p *pvc) Namespace() string {
	return p.resource.GetNamespace()
}

func (p *pvc) VolumeName() string {
	return p.resource.Spec.VolumeName
}

func (p *pvc) ClaimedCapacity() kubeapiresouce.Quantity {
	return p.resource.Spec.Resources.Requests[kubecore.ResourceStorage]
}

func (p *pvc) Close() error {
	if p.onClose == nil {
		return nil
	}
	return p.onClose()
}

// Abstraction of k8s Ingress
type Ingress interface {
	Name() string

	// host name of the first rule.
	Host() string

	// URL of the first rule, like "https://host.example.com".
	//
	// The scheme is https when the host is listed in TLS hosts.
	URL() string

	Close() error
}

type ingress struct {
	resource *kubenet.Ingress
	onClose  func() error
}

func (i *ingress) Name() string {
	return i.resource.GetName()
}

func (i *ingress) Host() string {
	for _, r := range i.resource.Spec.Rules {
		if r.Host != "" {
			return r.Host
		}
	}
	return ""
}

func (i *ingress) URL() string {
	host := i.Host()
	if host == "" {
		return ""
	}
	for _, t := range i.resource.Spec.TLS {
		for _, h := range t.Hosts {
			if h == host {
				return "https://" + host
			}
		}
	}
	return "http://" + host
}

func (i *ingress) Close() error {
	if i.onClose == nil {
		return nil
	}
	return i.onClose()
}

type JobStatus string

const (
	// no pods have been started.
	Pending JobStatus = "Pending"

	// at least one pod has started, and the job has not completed.
	Running JobStatus = "Running"

	// the job is succeeded.
	Succeeded JobStatus = "Succeeded"

	// the job is failed.
	Failed JobStatus = "Failed"
)

// abstraction of k8s job.
type Job interface {
	// the name of the job
	Name() string

	// the namespace where the job is placed in
	Namespace() string

	// how does the job progress, at least
	//
	// This value is just a SNAPSHOT of the job when you get the instance.
	// To refresh, you should get a new instance of `Job` with `Cluster.GetJob`.
	Status() JobStatus

	// ExitCode returns the exit code of the container of job
	//
	// # Return
	//
	// - exitCode : the exit code of the container.
	//
	// - reason: the reason of the termination.
	//
	// - ok : true if the container has been stopped, false otherwise.
	ExitCode(container string) (uint8, string, bool)

	// Log get log stream of the job. It follows until the container stops.
	Log(ctx context.Context, containerName string) (io.ReadCloser, error)

	// destroy the job. If the job is running or pending, it can be aborted.
	Close() error
}

type job struct {
	job    *kubebatch.Job
	pods   []kubecore.Pod
	client K8sClient
	close  func() error
}

var _ Job = &job{}

func (j *job) Name() string {
	return j.job.Name
}

func (j *job) Namespace() string {
	return j.job.Namespace
}

func (j *job) Status() JobStatus {
	for _, sc := range j.job.Status.Conditions {
		if sc.Status != kubecore.ConditionTrue {
			continue
		}
		switch sc.Type {
		case kubebatch.JobComplete:
			return Succeeded
		case kubebatch.JobFailed:
			return Failed
		}
	}

	for _, p := range j.pods {
		switch p.Status.Phase {
		case kubecore.PodRunning, kubecore.PodSucceeded, kubecore.PodFailed:
			return Running
		}
	}

	return Pending
}

func (j *job) Log(ctx context.Context, containerName string) (io.ReadCloser, error) {
	if len(j.pods) == 0 {
		return nil, errors.New("no pods")
	}
	pod := j.pods[0]
	return j.client.Log(ctx, pod.Namespace, pod.Name, containerName)
}

func (j *job) ExitCode(container string) (uint8, string, bool) {
	for _, p := range j.pods {
		for _, c := range p.Status.ContainerStatuses {
			if c.Name != container {
				continue
			}
			if term := c.State.Terminated; term != nil {
				return uint8(term.ExitCode), term.Reason, true
			}
			break
		}
	}
	return 0, "", false
}

func (j *job) Close() error {
	if j.close == nil {
		return nil
	}
	return j.close()
}

type Cluster interface {
	Namespace() string
	Domain() string

	// Create new PVC and wait for it to satisfy all requirements.
	//
	// If no requirements are given, PVCIsBound is used.
	//
	// The Promise may have Error below:
	//
	// - k8serrors.ErrConflict: PVC is already created.
	//
	// - k8serrors.ErrMissing: PVC is missing after created until meets requirements.
	//
	// - other errors come from Requirements and context.Context
	NewPVC(context.Context, retry.Backoff, *kubecore.PersistentVolumeClaim, ...Requirement[*kubecore.PersistentVolumeClaim]) retry.Promise[PVC]

	// Get existing PVC.
	//
	// If no requirements are given, PVCIsBound is used.
	// The Promise has k8serrors.ErrMissing when PVC is not found.
	GetPVC(context.Context, retry.Backoff, string, ...Requirement[*kubecore.PersistentVolumeClaim]) retry.Promise[PVC]

	// Delete PVC. It returns k8serrors.ErrMissing when it is not found.
	DeletePVC(ctx context.Context, name string) error

	// HostPath returns the directory on the node where the volume bound to the PVC lives.
	//
	// The PersistentVolume should be a "local" or "hostPath" volume.
	HostPath(ctx context.Context, pvc PVC) (string, error)

	// Create new Deployment and wait for it to satisfy all requirements.
	//
	// If no requirements are given, EnoughReplicas is used.
	//
	// Whether or not the Promise has Error, deployment can be created.
	// So, you may need to Close() it.
	NewDeployment(context.Context, retry.Backoff, *kubeapps.Deployment, ...Requirement[*kubeapps.Deployment]) retry.Promise[Deployment]

	// Get existing Deployment.
	//
	// It returns k8serrors.ErrMissing when it is not found.
	GetDeployment(ctx context.Context, name string) (Deployment, error)

	// Update Deployment with mutate.
	//
	// It returns k8serrors.ErrMissing when it is not found.
	UpdateDeployment(ctx context.Context, name string, mutate func(*kubeapps.Deployment) error) (Deployment, error)

	// Delete Deployment and its pods. It returns k8serrors.ErrMissing when it is not found.
	DeleteDeployment(ctx context.Context, name string) error

	// Create new Service and wait for it to satisfy all requirements.
	//
	// If no requirements are given, ServiceIsReady is used.
	NewService(context.Context, retry.Backoff, *kubecore.Service, ...Requirement[*kubecore.Service]) retry.Promise[Service]

	// Delete Service. It returns k8serrors.ErrMissing when it is not found.
	DeleteService(ctx context.Context, name string) error

	// Create new Ingress.
	//
	// It returns k8serrors.ErrConflict when it is already created.
	NewIngress(ctx context.Context, spec *kubenet.Ingress) (Ingress, error)

	// Get existing Ingress.
	//
	// It returns k8serrors.ErrMissing when it is not found.
	GetIngress(ctx context.Context, name string) (Ingress, error)

	// Delete Ingress. It returns k8serrors.ErrMissing when it is not found.
	DeleteIngress(ctx context.Context, name string) error

	// Create new k8s job
	//
	// If no requirements are given, JobHaveBeenCreated is used.
	//
	// Whether or not the Promise has Error, Job can be created.
	// So, you may need to Close() it.
	NewJob(context.Context, retry.Backoff, *kubebatch.Job, ...Requirement[*kubebatch.Job]) retry.Promise[Job]

	// Get existing k8s job
	//
	// The Promise has k8serrors.ErrMissing when the Job is not found.
	GetJob(context.Context, retry.Backoff, string, ...Requirement[*kubebatch.Job]) retry.Promise[Job]
}

type k8sCluster struct {
	client    K8sClient
	namespace string
	domain    string
}

// Requirement is a function that checks if creating k8s resource satisfies the requirement.
//
// # Return
//
// - error: When the value satisfies the requirement, return nil.
// If it is waiting to satisfy the requirement, return `retry.ErrRetry`.
// Otherwise, return error.
type Requirement[T any] func(value T) error

// WithCheckpoint makes requirement fail with k8serrors.ErrDeadlineExceeded after deadline.
//
// Once satisfied, it stays satisfied.
func WithCheckpoint[T any](requirement Requirement[T], deadline time.Time) Requirement[T] {
	satisfied := false
	return func(value T) error {
		if satisfied {
			return nil
		}
		if time.Now().After(deadline) {
			return k8serrors.ErrDeadlineExceeded
		}

		err := requirement(value)
		if err != nil {
			return err
		}

		satisfied = true
		return nil
	}
}

func satisfyAll[T any](value T, req []Requirement[T]) error {
	for _, r := range req {
		if err := r(value); err != nil {
			return err
		}
	}
	return nil
}

// type check: k8scluster implements Cluster
var _ Cluster = &k8sCluster{}

// Attach kubernetes cluster.
//
// args:
//   - client: k8s clientset
//   - namespace: k8s namespace
//   - domain: k8s-internal domain name. If empty string is passed, it uses`"cluster.local"` as default.
func AttachCluster(client K8sClient, namespace string, domain string) Cluster {
	if domain == "" {
		domain = "cluster.local"
	}
	return &k8sCluster{client: client, namespace: namespace, domain: domain}
}

func (c *k8sCluster) Namespace() string {
	return c.namespace
}

func (c *k8sCluster) Domain() string {
	return c.domain
}

func failFast(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

var PVCIsBound Requirement[*kubecore.PersistentVolumeClaim] = func(value *kubecore.PersistentVolumeClaim) error {
	if value.Status.Phase == kubecore.ClaimBound {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) NewPVC(
	ctx context.Context, backoff retry.Backoff, pvcconf *kubecore.PersistentVolumeClaim,
	requirements ...Requirement[*kubecore.PersistentVolumeClaim],
) retry.Promise[PVC] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubecore.PersistentVolumeClaim]{PVCIsBound}
	}
	if err := failFast(ctx); err != nil {
		return retry.Failed[PVC](err)
	}

	_pvc, err := c.client.CreatePVC(ctx, c.namespace, pvcconf)
	if err != nil {
		return retry.Failed[PVC](k8serrors.Classify(err))
	}

	if err := satisfyAll(_pvc, requirements); err == nil {
		return retry.Ok[PVC](&pvc{resource: _pvc, onClose: c.closer(c.client.DeletePVC, _pvc.Name)})
	} else if !errors.Is(err, retry.ErrRetry) {
		return retry.Failed[PVC](err)
	}

	return c.GetPVC(ctx, backoff, _pvc.Name, requirements...)
}

func (c *k8sCluster) GetPVC(
	ctx context.Context, backoff retry.Backoff, pvcname string,
	requirements ...Requirement[*kubecore.PersistentVolumeClaim],
) retry.Promise[PVC] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubecore.PersistentVolumeClaim]{PVCIsBound}
	}

	_close := c.closer(c.client.DeletePVC, pvcname)
	return retry.Go(ctx, backoff, func() (PVC, error) {
		_pvc, err := c.client.GetPVC(ctx, c.namespace, pvcname)
		if err != nil {
			return nil, k8serrors.Classify(err)
		}
		return &pvc{resource: _pvc, onClose: _close}, satisfyAll(_pvc, requirements)
	})
}

func (c *k8sCluster) DeletePVC(ctx context.Context, name string) error {
	return k8serrors.Classify(c.client.DeletePVC(ctx, c.namespace, name))
}

func (c *k8sCluster) HostPath(ctx context.Context, p PVC) (string, error) {
	if p.VolumeName() == "" {
		return "", fmt.Errorf("pvc %s is not bound", p.Name())
	}
	pv, err := c.client.GetPV(ctx, p.VolumeName())
	if err != nil {
		return "", k8serrors.Classify(err)
	}
	switch {
	case pv.Spec.Local != nil:
		return pv.Spec.Local.Path, nil
	case pv.Spec.HostPath != nil:
		return pv.Spec.HostPath.Path, nil
	default:
		return "", fmt.Errorf("pv %s is neither local nor hostPath volume", pv.Name)
	}
}

var EnoughReplicas Requirement[*kubeapps.Deployment] = func(value *kubeapps.Deployment) error {
	replicas := int32(1)
	if value.Spec.Replicas != nil {
		replicas = *value.Spec.Replicas
	}
	if replicas <= value.Status.AvailableReplicas {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) NewDeployment(
	ctx context.Context, backoff retry.Backoff, dplconf *kubeapps.Deployment,
	requirements ...Requirement[*kubeapps.Deployment],
) retry.Promise[Deployment] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubeapps.Deployment]{EnoughReplicas}
	}
	if err := failFast(ctx); err != nil {
		return retry.Failed[Deployment](err)
	}

	dpl, err := c.client.CreateDeployment(ctx, c.namespace, dplconf)
	if err != nil {
		return retry.Failed[Deployment](k8serrors.Classify(err))
	}
	_close := c.closer(c.client.DeleteDeployment, dpl.Name)

	if err := satisfyAll(dpl, requirements); err == nil {
		return retry.Ok[Deployment](&deployment{resource: dpl, onClose: _close})
	} else if !errors.Is(err, retry.ErrRetry) {
		return retry.Failed[Deployment](err)
	}

	return retry.Go(ctx, backoff, func() (Deployment, error) {
		dpl, err := c.client.GetDeployment(ctx, c.namespace, dplconf.Name)
		if err != nil {
			return nil, k8serrors.Classify(err)
		}
		return &deployment{resource: dpl, onClose: _close}, satisfyAll(dpl, requirements)
	})
}

func (c *k8sCluster) GetDeployment(ctx context.Context, name string) (Deployment, error) {
	dpl, err := c.client.GetDeployment(ctx, c.namespace, name)
	if err != nil {
		return nil, k8serrors.Classify(err)
	}
	return &deployment{resource: dpl, onClose: c.closer(c.client.DeleteDeployment, name)}, nil
}

func (c *k8sCluster) UpdateDeployment(ctx context.Context, name string, mutate func(*kubeapps.Deployment) error) (Deployment, error) {
	dpl, err := c.client.GetDeployment(ctx, c.namespace, name)
	if err != nil {
		return nil, k8serrors.Classify(err)
	}
	if err := mutate(dpl); err != nil {
		return nil, err
	}
	updated, err := c.client.UpdateDeployment(ctx, c.namespace, dpl)
	if err != nil {
		if kubeerr.IsConflict(err) {
			return nil, k8serrors.NewConflictCausedBy("deployment is modified concurrently", err)
		}
		return nil, k8serrors.Classify(err)
	}
	return &deployment{resource: updated, onClose: c.closer(c.client.DeleteDeployment, name)}, nil
}

func (c *k8sCluster) DeleteDeployment(ctx context.Context, name string) error {
	return k8serrors.Classify(c.client.DeleteDeployment(ctx, c.namespace, name))
}

var ServiceIsReady Requirement[*kubecore.Service] = func(value *kubecore.Service) error {
	if value.Spec.ClusterIP != "" {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) NewService(
	ctx context.Context, backoff retry.Backoff, svcconf *kubecore.Service,
	requirements ...Requirement[*kubecore.Service],
) retry.Promise[Service] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubecore.Service]{ServiceIsReady}
	}
	if err := failFast(ctx); err != nil {
		return retry.Failed[Service](err)
	}

	svc, err := c.client.CreateService(ctx, c.namespace, svcconf)
	if err != nil {
		return retry.Failed[Service](k8serrors.Classify(err))
	}
	_close := c.closer(c.client.DeleteService, svc.Name)

	if err := satisfyAll(svc, requirements); err == nil {
		return retry.Ok[Service](&service{resource: svc, domain: c.domain, close: _close})
	} else if !errors.Is(err, retry.ErrRetry) {
		return retry.Failed[Service](err)
	}

	return retry.Go(ctx, backoff, func() (Service, error) {
		svc, err := c.client.GetService(ctx, c.namespace, svcconf.Name)
		if err != nil {
			return nil, k8serrors.Classify(err)
		}
		return &service{resource: svc, domain: c.domain, close: _close}, satisfyAll(svc, requirements)
	})
}

func (c *k8sCluster) DeleteService(ctx context.Context, name string) error {
	return k8serrors.Classify(c.client.DeleteService(ctx, c.namespace, name))
}

func (c *k8sCluster) NewIngress(ctx context.Context, spec *kubenet.Ingress) (Ingress, error) {
	ing, err := c.client.CreateIngress(ctx, c.namespace, spec)
	if err != nil {
		return nil, k8serrors.Classify(err)
	}
	return &ingress{resource: ing, onClose: c.closer(c.client.DeleteIngress, ing.Name)}, nil
}

func (c *k8sCluster) GetIngress(ctx context.Context, name string) (Ingress, error) {
	ing, err := c.client.GetIngress(ctx, c.namespace, name)
	if err != nil {
		return nil, k8serrors.Classify(err)
	}
	return &ingress{resource: ing, onClose: c.closer(c.client.DeleteIngress, name)}, nil
}

func (c *k8sCluster) DeleteIngress(ctx context.Context, name string) error {
	return k8serrors.Classify(c.client.DeleteIngress(ctx, c.namespace, name))
}

var JobHaveBeenCreated Requirement[*kubebatch.Job] = func(value *kubebatch.Job) error {
	return nil
}

// JobHasFinished is satisfied when the Job is completed or failed.
var JobHasFinished Requirement[*kubebatch.Job] = func(value *kubebatch.Job) error {
	switch (&job{job: value}).Status() {
	case Succeeded, Failed:
		return nil
	default:
		return retry.ErrRetry
	}
}

func (c *k8sCluster) NewJob(
	ctx context.Context, p retry.Backoff, j *kubebatch.Job,
	requirements ...Requirement[*kubebatch.Job],
) retry.Promise[Job] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubebatch.Job]{JobHaveBeenCreated}
	}
	if err := failFast(ctx); err != nil {
		return retry.Failed[Job](err)
	}

	_job, err := c.client.CreateJob(ctx, c.namespace, j)
	if err != nil {
		return retry.Failed[Job](k8serrors.Classify(err))
	}

	if err := satisfyAll(_job, requirements); err == nil {
		return retry.Ok[Job](c.jobOf(ctx, _job))
	} else if !errors.Is(err, retry.ErrRetry) {
		return retry.Failed[Job](err)
	}

	return c.GetJob(ctx, p, _job.Name, requirements...)
}

func (c *k8sCluster) GetJob(
	ctx context.Context, p retry.Backoff, name string,
	requirements ...Requirement[*kubebatch.Job],
) retry.Promise[Job] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubebatch.Job]{JobHaveBeenCreated}
	}

	return retry.Go(ctx, p, func() (Job, error) {
		_job, err := c.client.GetJob(ctx, c.namespace, name)
		if err != nil {
			return nil, k8serrors.Classify(err)
		}
		if err := satisfyAll(_job, requirements); err != nil {
			return nil, err
		}
		return c.jobOf(ctx, _job), nil
	})
}

func (c *k8sCluster) jobOf(ctx context.Context, _job *kubebatch.Job) *job {
	ret := &job{
		job:    _job,
		client: c.client,
		close:  c.closer(c.client.DeleteJob, _job.Name),
	}
	matchLabels := map[string]string{"job-name": _job.Name}
	if _job.Spec.Selector != nil && len(_job.Spec.Selector.MatchLabels) != 0 {
		matchLabels = _job.Spec.Selector.MatchLabels
	}
	if pods, err := c.client.FindPods(ctx, c.namespace, LabelsToSelector(matchLabels)); err == nil {
		ret.pods = pods
	}
	return ret
}

// closer deletes the named resource.
//
// It runs with a fresh context, so resources can be released after the caller's context is done.
func (c *k8sCluster) closer(del func(context.Context, string, string) error, name string) func() error {
	return func() error {
		return k8serrors.Classify(del(context.Background(), c.namespace, name))
	}
}
