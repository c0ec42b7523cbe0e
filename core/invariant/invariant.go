// Package invariant provides contract assertions for programmer errors.
//
// Violations panic: they indicate bugs in the host or a plugin author's code,
// never bad user input. User-facing failures go through core/diag instead.
package invariant

import "fmt"

// Precondition checks an input contract at function entry.
func Precondition(condition bool, format string, args ...any) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Invariant checks internal consistency mid-function.
func Invariant(condition bool, format string, args ...any) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// Violated reports an unconditional contract violation, such as an
// environment handle dropped without finish.
func Violated(format string, args ...any) {
	fail("VIOLATION", format, args...)
}

func fail(kind, format string, args ...any) {
	panic(fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...)))
}
