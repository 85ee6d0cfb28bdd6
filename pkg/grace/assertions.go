package grace

import "fmt"

// ActionableError carries enough context for a CLI user to fix the
// problem themselves: what was expected, what actually happened and
// what to do about it.
type ActionableError struct {
	Expected     string
	Got          string
	CallToAction string

	Cause error
}

func (e *ActionableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("expected: %s, got: %s (%v); What to do: %s", e.Expected, e.Got, e.Cause, e.CallToAction)
	}
	return fmt.Sprintf("expected: %s, got: %s; What to do: %s", e.Expected, e.Got, e.CallToAction)
}

func (e *ActionableError) Unwrap() error {
	return e.Cause
}

func RaiseError(expected, got, cta string) error {
	return &ActionableError{
		Expected:     expected,
		Got:          got,
		CallToAction: cta,
	}
}
