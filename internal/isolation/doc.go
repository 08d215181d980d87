// Package isolation provisions throwaway execution environments for
// builds.
//
// Two variants sit behind one capability interface: an ephemeral-venv
// backend that roots a virtual environment at a unique staging directory,
// and a containerd-backed backend that launches a fresh container per
// execution. Callers depend only on Provision, Execute, and Teardown; the
// variant is selected by configuration.
//
// A [Context] is a scoped resource: created at build start, used for
// exactly one build command, and destroyed on every exit path including
// failure. Teardown is idempotent, so orchestration code can defer it
// unconditionally.
//
// Example usage:
//
//	backend := isolation.NewVenv()
//
//	ictx, err := backend.Provision(ctx, spec, isolation.ProvisionOptions{
//	    SourceDir: "/path/to/project",
//	    Script:    isolation.ScriptSpec{Wheel: true},
//	})
//	if err != nil {
//	    return err
//	}
//	defer backend.Teardown(ictx)
//
//	result, err := backend.Execute(ctx, ictx, []string{"/bin/sh", ictx.ScriptInContext}, isolation.Limits{})
//	if err != nil {
//	    return err
//	}
package isolation
