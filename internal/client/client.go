// Package client talks to a running boxd daemon over its Unix socket.
//
// Each call opens a connection, writes one request envelope, reads one
// response envelope and closes the connection. Cancelling the context
// closes the connection, which the daemon treats as a cancelled build.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/cruciblehq/boxd/internal/paths"
	"github.com/cruciblehq/boxd/internal/protocol"
	"github.com/pkg/errors"
)

var ErrUnavailable = errors.New("daemon unavailable")

// Returned when the daemon answers with an error envelope.
type RemoteError struct {
	protocol.ErrorResult
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Sends commands to a daemon socket.
type Client struct {
	socketPath string
}

// Creates a client for the socket at socketPath. Empty uses the default.
func New(socketPath string) *Client {
	if socketPath == "" {
		socketPath = paths.Socket()
	}
	return &Client{socketPath: socketPath}
}

// Asks the daemon to execute a plan.
func (c *Client) Build(ctx context.Context, req *protocol.BuildRequest) (*protocol.BuildResult, error) {
	var res protocol.BuildResult
	if err := c.call(ctx, protocol.CmdBuild, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Queries the daemon's status.
func (c *Client) Status(ctx context.Context) (*protocol.StatusResult, error) {
	var res protocol.StatusResult
	if err := c.call(ctx, protocol.CmdStatus, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, protocol.CmdShutdown, nil, nil)
}

// Performs a single request-response exchange.
//
// When out is nil the response payload is discarded.
func (c *Client) call(ctx context.Context, cmd protocol.Command, payload, out any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, c.socketPath, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	env, raw, err := protocol.Decode(line)
	if err != nil {
		return err
	}

	switch env.Command {
	case protocol.CmdOK:
	case protocol.CmdError:
		res, err := protocol.DecodePayload[protocol.ErrorResult](raw)
		if err != nil {
			return err
		}
		return &RemoteError{ErrorResult: *res}
	default:
		return errors.Wrap(protocol.ErrMalformed, fmt.Sprintf("unexpected response %q", env.Command))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrMalformed, err)
	}
	return nil
}
