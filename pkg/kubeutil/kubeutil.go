// Package kubeutil connects to the kubernetes cluster gwvolman runs in.
package kubeutil

import (
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

// Kubeconfig finds a kubeconfig file.
//
// Candidates are, in priority order, explicit, $KUBECONFIG and ~/.kube/config.
// Candidates which are not regular files are skipped.
// An empty string is returned when nothing is found.
func Kubeconfig(explicit string) string {
	candidates := []string{explicit, os.Getenv("KUBECONFIG")}
	if home := homedir.HomeDir(); home != "" {
		candidates = append(candidates, filepath.Join(home, ".kube", "config"))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if s, err := os.Stat(c); err == nil && !s.IsDir() {
			return c
		}
	}
	return ""
}

// Connect creates a clientset from the kubeconfig found by Kubeconfig(explicit).
//
// Without kubeconfig, the in-cluster config is used.
func Connect(explicit string) (*kubernetes.Clientset, error) {
	var config *rest.Config
	var err error
	if kc := Kubeconfig(explicit); kc != "" {
		config, err = clientcmd.BuildConfigFromFlags("", kc)
	} else {
		config, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return clientset, nil
}
