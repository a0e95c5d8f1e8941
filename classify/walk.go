package classify

import (
	"fmt"
	"strings"
)

// MaxCauseDepth bounds how many wrapped causes Walk follows below the
// outermost error.
const MaxCauseDepth = 10

// Walk calls visit on err and then on each wrapped cause, stopping after
// MaxCauseDepth hops or as soon as visit returns true. For errors that wrap
// several causes (errors.Join, multi-%w) only the first branch is followed.
// It reports whether visit stopped the walk.
func Walk(err error, visit func(error) bool) bool {
	for depth := 0; err != nil && depth <= MaxCauseDepth; depth++ {
		if visit(err) {
			return true
		}

		err = unwrapOnce(err)
	}

	return false
}

func unwrapOnce(err error) error {
	switch e := err.(type) { //nolint:errorlint // single-level unwrap on purpose
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if inner != nil {
				return inner
			}
		}
	}

	return nil
}

// find returns the first error in the bounded chain that is a T.
func find[T any](err error) (T, bool) {
	var out T

	found := Walk(err, func(e error) bool {
		t, ok := e.(T) //nolint:errorlint // Walk already unwraps
		if ok {
			out = t
		}

		return ok
	})

	return out, found
}

// is is errors.Is restricted to the bounded chain.
func is(err, target error) bool {
	return Walk(err, func(e error) bool {
		if e == target { //nolint:errorlint,err113 // Walk already unwraps
			return true
		}

		x, ok := e.(interface{ Is(error) bool }) //nolint:errorlint

		return ok && x.Is(target)
	})
}

// typeNames lists the lowercased dynamic types along the bounded chain,
// separated by spaces.
func typeNames(err error) string {
	var sb strings.Builder

	Walk(err, func(e error) bool {
		sb.WriteString(strings.ToLower(fmt.Sprintf("%T", e)))
		sb.WriteByte(' ')

		return false
	})

	return sb.String()
}
