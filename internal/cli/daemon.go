package cli

import (
	"context"
	"fmt"

	"github.com/cruciblehq/boxd/internal/client"
)

// Represents the 'boxd status' command.
type StatusCmd struct {
	JSON bool `help:"Print the status as JSON."`
}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	status, err := client.New(RootCmd.Socket).Status(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(status)
	}

	fmt.Printf("version: %s\n", status.Version)
	fmt.Printf("pid:     %d\n", status.Pid)
	fmt.Printf("uptime:  %s\n", status.Uptime)
	fmt.Printf("engine:  %s\n", status.Engine)
	fmt.Printf("builds:  %d ok, %d failed, %d active\n", status.Builds, status.Failed, status.Active)
	return nil
}

// Represents the 'boxd stop' command.
type StopCmd struct{}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context) error {
	return client.New(RootCmd.Socket).Shutdown(ctx)
}
