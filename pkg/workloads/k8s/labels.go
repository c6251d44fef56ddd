package k8s

import (
	"sort"
	"strings"
)

// k8s Label SelectorElement like EqualityBased
type SelectorElement interface {
	// convert to querystring expression for label
	QueryString(label string) string

	// return true if this is equal to other. otherwise false.
	Equal(other SelectorElement) bool
}

type LabelSelector map[string]SelectorElement

// convert to string value in form of query string.
//
// Terms are sorted by label, so the result is stable.
func (ls LabelSelector) QueryString() string {
	keys := make([]string, 0, len(ls))
	for k := range ls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		terms = append(terms, ls[k].QueryString(k))
	}
	return strings.Join(terms, ",")
}

// see: https://kubernetes.io/docs/concepts/overview/working-with-objects/labels/#equality-based-requirement
type EqualityBased string

var _ SelectorElement = EqualityBased("")

func Eq(value string) EqualityBased {
	_, v := EqualityBased(value).split()
	return EqualityBased("=" + v)
}

func NotEq(value string) EqualityBased {
	_, v := EqualityBased(value).split()
	return EqualityBased("!=" + v)
}

func (eqb EqualityBased) split() (operator string, value string) {
	exp := string(eqb)
	switch {
	case strings.HasPrefix(exp, "!="):
		return "!=", exp[2:]
	case strings.HasPrefix(exp, "=="):
		return "=", exp[2:]
	case strings.HasPrefix(exp, "="):
		return "=", exp[1:]
	default:
		return "=", exp
	}
}

func (eqb EqualityBased) QueryString(label string) string {
	op, v := eqb.split()
	return label + op + v
}

func (eqb EqualityBased) Equal(other SelectorElement) bool {
	o, ok := other.(EqualityBased)
	if !ok {
		return false
	}
	op, v := eqb.split()
	oop, ov := o.split()
	return op == oop && v == ov
}

func LabelsToSelector(ls map[string]string) LabelSelector {
	sel := LabelSelector{}
	for k, v := range ls {
		sel[k] = Eq(v)
	}
	return sel
}
