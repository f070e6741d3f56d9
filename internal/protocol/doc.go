// Package protocol defines the wire format between the boxd CLI and daemon.
//
// Every message is a single line of JSON holding an [Envelope]: a command
// name and a command-specific payload. A client writes one request envelope
// and reads one response envelope, whose command is either [CmdOK] or
// [CmdError].
//
// Example usage:
//
//	data, err := protocol.Encode(protocol.CmdBuild, &protocol.BuildRequest{
//	    Plan: string(planYAML),
//	    Root: "/src/app",
//	})
//	if err != nil {
//	    return err
//	}
//
//	env, payload, err := protocol.Decode(line)
//	if err != nil {
//	    return err
//	}
//	result, err := protocol.DecodePayload[protocol.BuildResult](payload)
package protocol
