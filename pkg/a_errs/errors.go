// Package errs defines the error taxonomy shared by every concurrency
// controller: conflicts a caller is expected to retry, and misuses that are
// programmer errors and therefore fatal.
package errs

import "github.com/cockroachdb/errors"

// ErrConflict is the general conflict sentinel. ErrLockFailed and
// ErrValidationFailed are the specific causes a discipline actually
// returns; both wrap ErrConflict, so a caller that only cares that a
// transaction conflicted can match errors.Is(err, ErrConflict) without
// naming the discipline, while one that cares why can match the
// specific cause. Callers match these with errors.Is and abort the
// transaction; the store itself never retries.
var ErrConflict = errors.New("transaction conflict")

var (
	ErrLockFailed       = errors.Wrap(ErrConflict, "lock acquisition failed")
	ErrValidationFailed = errors.Wrap(ErrConflict, "version validation failed")
)

// Misuse turns a programmer error into a panic carrying a
// cockroachdb/errors assertion, mirroring the `verify()`/`assert()` calls
// that guard nearly every method in the original mdb::Txn implementation.
func Misuse(format string, args ...interface{}) {
	panic(errors.AssertionFailedf(format, args...))
}

// Verify panics with a Misuse error when cond is false. It is the
// call-site replacement for the source's `verify(cond)`.
func Verify(cond bool, format string, args ...interface{}) {
	if !cond {
		Misuse(format, args...)
	}
}
