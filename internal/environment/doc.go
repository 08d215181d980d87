// Package environment resolves build requests to pinned execution
// environments.
//
// The known-environment table is static, package-level data: a mapping from
// canonical (platform, architecture) keys to fully-qualified PyPA container
// image references, plus a mapping from supported Python versions to
// interpreter paths. Selection never assembles an identifier from caller
// input; requests either hit a table entry or fail closed with
// [ErrUnsupported].
//
// Example usage:
//
//	spec, err := environment.Select("3.12", "manylinux", "x86_64", "")
//	if err != nil {
//	    return err
//	}
//	// spec.Image == "quay.io/pypa/manylinux_2_28_x86_64"
package environment
