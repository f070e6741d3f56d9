// Package hostfs runs build plans inside plain directories on the host.
//
// Each environment is a directory under the engine root that stands in for
// the root filesystem of a container. Paths are mapped into it with
// symlink-safe joins, so copies and workdirs cannot escape it. Commands are
// ordinary host processes whose working directory is mapped into the
// environment; this makes the engine suitable for builds that only need to
// stage files and run host tooling, and for exercising plans without a
// container runtime.
//
// Example usage:
//
//	eng := hostfs.New("")
//	env, err := eng.Start(ctx, "rootfs.tar.gz", "build-1", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer env.Destroy(ctx)
package hostfs
