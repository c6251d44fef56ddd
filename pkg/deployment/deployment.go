// Package deployment discovers public urls of Whole Tale services.
package deployment

import (
	"context"
	"fmt"
	"sync"

	k8s "github.com/whole-tale/gwvolman/pkg/workloads/k8s"
)

// Deployment tells public urls of services in a Whole Tale deployment.
//
// Urls are read from the Ingress of each service, once.
type Deployment interface {
	DashboardURL(ctx context.Context) (string, error)
	GirderURL(ctx context.Context) (string, error)
	RegistryURL(ctx context.Context) (string, error)
}

// Names are the names of Ingresses of services.
type Names struct {
	Dashboard string
	Girder    string
	Registry  string
}

type deployment struct {
	cluster k8s.Cluster
	names   Names

	mu    sync.Mutex
	known map[string]string
}

func New(cluster k8s.Cluster, names Names) Deployment {
	return &deployment{
		cluster: cluster,
		names:   names,
		known:   map[string]string{},
	}
}

func (d *deployment) urlOf(ctx context.Context, ingressName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.known[ingressName]; ok {
		return u, nil
	}

	ing, err := d.cluster.GetIngress(ctx, ingressName)
	if err != nil {
		return "", err
	}
	u := ing.URL()
	if u == "" {
		return "", fmt.Errorf("ingress %s has no host", ingressName)
	}
	d.known[ingressName] = u
	return u, nil
}

func (d *deployment) DashboardURL(ctx context.Context) (string, error) {
	return d.urlOf(ctx, d.names.Dashboard)
}

func (d *deployment) GirderURL(ctx context.Context) (string, error) {
	return d.urlOf(ctx, d.names.Girder)
}

func (d *deployment) RegistryURL(ctx context.Context) (string, error) {
	return d.urlOf(ctx, d.names.Registry)
}
