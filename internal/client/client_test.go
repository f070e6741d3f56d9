package client

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cruciblehq/boxd/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Creates a socket path short enough for the platform's sun_path limit.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "boxd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

// Serves one connection, answering with reply after recording the request.
func serveOnce(t *testing.T, path string, reply func(*protocol.Envelope) []byte) <-chan *protocol.Envelope {
	t.Helper()
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan *protocol.Envelope, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		env, _, err := protocol.Decode(line)
		if err != nil {
			return
		}
		got <- env
		if resp := reply(env); resp != nil {
			conn.Write(append(resp, '\n'))
		}
	}()
	return got
}

func encode(t *testing.T, cmd protocol.Command, payload any) []byte {
	t.Helper()
	data, err := protocol.Encode(cmd, payload)
	require.NoError(t, err)
	return data
}

func TestStatus(t *testing.T) {
	path := socketPath(t)
	reqs := serveOnce(t, path, func(*protocol.Envelope) []byte {
		return encode(t, protocol.CmdOK, &protocol.StatusResult{Running: true, Engine: "host", Builds: 3})
	})

	res, err := New(path).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Running)
	assert.Equal(t, "host", res.Engine)
	assert.Equal(t, 3, res.Builds)
	assert.Equal(t, protocol.CmdStatus, (<-reqs).Command)
}

func TestBuildRemoteError(t *testing.T) {
	path := socketPath(t)
	serveOnce(t, path, func(*protocol.Envelope) []byte {
		return encode(t, protocol.CmdError, &protocol.ErrorResult{
			Message:  "step 3 (run): command \"fetch\" exited with code 2",
			Kind:     protocol.ErrorKindCommand,
			ExitCode: 2,
		})
	})

	_, err := New(path).Build(context.Background(), &protocol.BuildRequest{Plan: "from: x", Root: "/src"})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.ErrorKindCommand, remote.Kind)
	assert.Equal(t, 2, remote.ExitCode)
	assert.Contains(t, err.Error(), "exited with code 2")
}

func TestShutdown(t *testing.T) {
	path := socketPath(t)
	reqs := serveOnce(t, path, func(*protocol.Envelope) []byte {
		return encode(t, protocol.CmdOK, nil)
	})

	require.NoError(t, New(path).Shutdown(context.Background()))
	assert.Equal(t, protocol.CmdShutdown, (<-reqs).Command)
}

func TestUnavailable(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.sock")).Status(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCancelClosesConnection(t *testing.T) {
	path := socketPath(t)
	serveOnce(t, path, func(*protocol.Envelope) []byte {
		time.Sleep(time.Second)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(path).Build(ctx, &protocol.BuildRequest{Plan: "from: x", Root: "/src"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
