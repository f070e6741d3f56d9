// Package runtime runs build environments in containers backed by
// containerd.
//
// A [Runtime] connects to a containerd daemon and implements the engine
// contract. The base image is either imported from a local OCI archive,
// tagged with a deterministic content hash, or pulled from a registry. It
// is unpacked for the target platform and used to create a container with
// an overlay snapshot.
//
// Each [Container] wraps a running containerd task. Commands are executed
// inside the container, files are copied in as tar streams, and the final
// filesystem state is committed and exported as a new OCI archive carrying
// the recorded image config. When the container is no longer needed it
// should be destroyed to release its snapshot and task resources.
//
// Example usage:
//
//	rt, err := runtime.New(runtime.DefaultAddress, runtime.DefaultNamespace)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	env, err := rt.Start(ctx, "golang:1.25", "build-1", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer env.Destroy(ctx)
//
//	result, err := env.Exec(ctx, "/bin/sh", "go version", nil, "/")
//	if err != nil {
//	    return err
//	}
package runtime
