package envutil

// Option modifies a Reader. Typed readers such as Int and Duration apply
// options in order, so Default followed by Validate validates the default too.
type Option[T any] func(Reader[T]) Reader[T]

// Default supplies a value to use when the variable is not set.
func Default[T any](dfl T) Option[T] {
	return func(rdr Reader[T]) Reader[T] {
		return rdr.WithDefault(dfl)
	}
}

// Validate runs f against the value. A non-nil error from f becomes the
// Reader's error.
func Validate[T any](f func(T) error) Option[T] {
	return func(rdr Reader[T]) Reader[T] {
		return rdr.Map(func(val T) (T, error) {
			return val, f(val)
		})
	}
}
