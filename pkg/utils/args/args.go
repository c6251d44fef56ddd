// Package args adapts typed parsers to flag.Value.
package args

// Adapter is a flag.Value holding a parsed T.
type Adapter[T interface{ String() string }] struct {
	value  T
	parser func(string) (T, error)
	isSet  bool
}

func (i *Adapter[T]) String() string {
	if i.isSet {
		return i.value.String()
	}
	return ""
}

func (i *Adapter[T]) Set(s string) error {
	v, err := i.parser(s)
	if err != nil {
		return err
	}
	i.isSet = true
	i.value = v
	return nil
}

func (i *Adapter[T]) Value() T {
	return i.value
}

func (i *Adapter[T]) IsSet() bool {
	return i.isSet
}

// Parser makes an Adapter which has no value until Set.
func Parser[T interface{ String() string }](parser func(string) (T, error)) *Adapter[T] {
	return &Adapter[T]{parser: parser}
}

// Default makes an Adapter which has a default value.
//
// The default is parsed on creation and panics when it is invalid.
func Default[T interface{ String() string }](parser func(string) (T, error), def string) *Adapter[T] {
	a := &Adapter[T]{parser: parser}
	if def == "" {
		return a
	}
	if err := a.Set(def); err != nil {
		panic(err)
	}
	return a
}
