package try

// Fataler is something which can stop the world with an error.
//
// *testing.T and *log.Logger are Fatalers.
type Fataler interface {
	Fatal(...any)
}

// Either wraps a (T, error) pair.
//
// It is "ok" when the error is nil, and then T is valid.
type Either[T any] interface {
	Get() (T, error)

	// OrFatal returns the value when ok. Otherwise, it calls ftl.Fatal(err).
	//
	// When ftl has Helper() (like *testing.T), it is called before Fatal.
	OrFatal(ftl Fataler) T

	OrDefault(T) T
}

func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{ok}
	}
	return tryNg[T]{ng}
}

// Map converts the value when the Either is ok.
func Map[T any, R any](try Either[T], mapper func(T) R) Either[R] {
	val, err := try.Get()
	if err != nil {
		return tryNg[R]{err}
	}
	return tryOk[R]{mapper(val)}
}

type tryOk[T any] struct {
	value T
}

type tryNg[T any] struct {
	err error
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(ng.err)
	return *new(T)
}
