// Package build interprets plans against an engine environment.
//
// A plan is a base image plus an ordered list of steps. The interpreter
// starts one environment from the base image and applies the steps in
// declaration order: copies stream files from the build context, workdir
// steps create and select a directory, run steps evaluate their guard and
// execute a shell command, and env, shell and exec config steps update the
// state recorded for later steps and for the produced artifact. The first
// failing step aborts the build.
//
// Failures are reported as [CopyError], [PathError] or [CommandError],
// wrapped with the failing step's position.
//
// Example usage:
//
//	p, err := plan.Load("boxd.yaml")
//	if err != nil {
//	    return err
//	}
//
//	result, err := build.Run(ctx, eng, build.Options{
//	    Plan:   p,
//	    Root:   ".",
//	    Output: "dist",
//	})
//	if err != nil {
//	    return err
//	}
package build
