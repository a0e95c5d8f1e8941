// Package errors holds shared sentinel errors and a collector for reporting
// several problems at once, such as every invalid setting in a config.
package errors

import "errors"

var (
	// ErrInvalidConfig wraps every configuration problem reported by config.Load.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrOutOfRange is a value outside its allowed bounds.
	ErrOutOfRange = errors.New("value out of range")
)

// FieldError attributes an error to a named setting.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Collection is a thread-unsafe utility for accumulating multiple errors.
// Use this when you need to validate several things and report every
// failure together rather than stopping at the first.
type Collection struct {
	errors []error
}

// Add appends an error to the collection. Nil errors are automatically ignored.
func (c *Collection) Add(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// AddField appends err attributed to field. Nil errors are ignored.
func (c *Collection) AddField(field string, err error) {
	if err != nil {
		c.errors = append(c.errors, &FieldError{Field: field, Err: err})
	}
}

// Clear removes all errors from the collection, resetting it to an empty state.
func (c *Collection) Clear() {
	c.errors = nil
}

// HasError returns true if the collection contains at least one error.
func (c *Collection) HasError() bool {
	return len(c.errors) > 0
}

// Len returns the number of collected errors.
func (c *Collection) Len() int {
	return len(c.errors)
}

// GetError returns the collected errors as a single error.
// Returns nil if the collection is empty, the single error if there's only one,
// or a joined error (using errors.Join) if there are multiple errors.
func (c *Collection) GetError() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return errors.Join(c.errors...)
	}
}
