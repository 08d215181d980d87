// Package validate applies safety checks to untrusted build inputs and
// outputs.
//
// Two surfaces are covered: mount specifications before they reach an
// isolation backend, and candidate output archives after a backend build
// completes. The package is pure and read-only; it never mutates the
// filesystem. Deletion decisions belong to the caller.
package validate
