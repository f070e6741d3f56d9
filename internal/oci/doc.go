// Package oci writes and inspects single-image OCI archives.
//
// [PackDir] turns a directory tree into a deterministic layer tar.
// [WriteArchive] compresses a layer and wraps it in an OCI image layout
// (oci-layout, index.json, content-addressed blobs) streamed as a tar
// archive, the same format containerd imports and exports. [Inspect] reads
// the index, manifest and config back out of such an archive.
package oci
