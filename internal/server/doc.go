// Package server implements the boxd daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands
// from the boxd CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the
// server dispatches the command, and writes the result back before
// closing the connection.
//
// Supported commands are building plans, querying daemon status, and
// initiating shutdown. Build commands are delegated to the build package,
// which drives the engine selected when the server was created.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    Engine: backend.Config{Kind: backend.KindContainerd},
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
