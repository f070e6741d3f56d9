// Parses flags and dispatches the boxd commands.
//
// boxd accepts the following global flags:
//
//	-q, --quiet       Suppress informational output.
//	-v, --verbose     Enable verbose output.
//	-d, --debug       Enable debug output.
//	-s, --socket      Unix socket path.
//	-e, --engine      Engine builds run against (host or containerd).
//	    --roots       Root filesystem directory for the host engine.
//	    --address     Containerd socket address.
//	    --namespace   Containerd namespace.
//
// Flags override build-time defaults set via linker flags and values read
// from the JSON config file. After parsing, the global logger is
// reconfigured to reflect the final level and verbosity before the command
// runs.
package cli
