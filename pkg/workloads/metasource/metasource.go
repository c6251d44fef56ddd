package metasource

import (
	"github.com/whole-tale/gwvolman/pkg/buildtime"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// LabelPrefix is the prefix of gwvolman specific labels.
const LabelPrefix = "wholetale.org/"

// Whole Tale resource metadata which is placed in k8s cluster.
//
// ToLabels converts MetaSource to k8s labels.
type MetaSource interface {
	// The name of application/resource kind, like "tale-volume".
	//
	// This is set as a value of k8s label "app.kubernetes.io/name".
	//
	// For `ObjectMeta.Name`, USE `Instance()`, NOT THIS.
	Name() string

	// This is set as a value of k8s label "app.kubernetes.io/instance"
	// AND ALSO `ObjectMeta.Name` .
	Instance() string

	// Where is this positioned in system archetecture.
	//
	// This is set as a value of k8s label "app.kubernetes.io/component".
	Component() string

	// Extra labels. Each key is prefixed with LabelPrefix.
	Extras() map[string]string
}

// convert MetaSource to k8s labels, including "recommended labels".
//
// https://kubernetes.io/docs/concepts/overview/working-with-objects/common-labels/
//
//   - "app.kubernetes.io/version"    : build version of gwvolman.
//   - "app.kubernetes.io/part-of"    : "wholetale"
//   - "app.kubernetes.io/managed-by" : "gwvolman"
//   - "app.kubernetes.io/component"  : s.Component()
//   - "app.kubernetes.io/name"       : s.Name()
//   - "app.kubernetes.io/instance"   : s.Instance()
//   - "wholetale.org/KEY"            : s.Extras()[KEY]
func ToLabels(s MetaSource) map[string]string {
	l := map[string]string{
		"app.kubernetes.io/version":    buildtime.VERSION(),
		"app.kubernetes.io/name":       s.Name(),
		"app.kubernetes.io/instance":   s.Instance(),
		"app.kubernetes.io/component":  s.Component(),
		"app.kubernetes.io/part-of":    "wholetale",
		"app.kubernetes.io/managed-by": "gwvolman",
	}
	for k, v := range s.Extras() {
		l[LabelPrefix+k] = v
	}
	return l
}

// ObjectMeta named after s.Instance() and labelled with ToLabels(s).
func ToObjectMeta(s MetaSource, namespace string) kubeapimeta.ObjectMeta {
	return kubeapimeta.ObjectMeta{
		Name:      s.Instance(),
		Namespace: namespace,
		Labels:    ToLabels(s),
	}
}

// SpecBuilder builds a k8s resource spec D from a configuration C.
type SpecBuilder[C any, D any] interface {
	Build(C) D
}

type ResourceBuilder[C any, D any] interface {
	MetaSource
	SpecBuilder[C, D]
}
