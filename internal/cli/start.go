package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/boxd/internal/server"
)

// Represents the 'boxd start' command.
type StartCmd struct{}

// Executes the start command.
//
// Starts the daemon on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM) or a client requests shutdown.
func (c *StartCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath: RootCmd.Socket,
		Engine:     engineConfig(),
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("boxd is running")

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case <-srv.Done():
		return nil
	}

	return srv.Stop()
}
