package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cruciblehq/boxd/internal"
	"github.com/cruciblehq/boxd/internal/build"
	"github.com/cruciblehq/boxd/internal/plan"
	"github.com/cruciblehq/boxd/internal/protocol"
	"github.com/pkg/errors"
)

// Handles a build command.
//
// Parses the plan sent by the CLI and executes it against the configured
// engine. The build is cancelled when the client disconnects.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	opts, err := buildOptions(payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, protocol.NewErrorResult(err))
		return
	}

	s.track(func(st *stats) { st.active++ })
	result, err := build.Run(ctx, s.backend, *opts)
	s.track(func(st *stats) {
		st.active--
		if err != nil {
			st.failed++
		} else {
			st.builds++
		}
	})

	if err != nil {
		slog.Error("build failed", "error", err)
		s.respond(conn, protocol.CmdError, protocol.NewErrorResult(err))
		return
	}

	s.respond(conn, protocol.CmdOK, &protocol.BuildResult{Artifact: result.Artifact})
}

// Decodes a build request into build options.
func buildOptions(payload json.RawMessage) (*build.Options, error) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(req.Root) {
		return nil, errors.Wrapf(ErrBuildReq, "root must be an absolute path, got %q", req.Root)
	}
	if req.Output != "" && !filepath.IsAbs(req.Output) {
		return nil, errors.Wrapf(ErrBuildReq, "output must be an absolute path, got %q", req.Output)
	}

	p, err := plan.Parse([]byte(req.Plan))
	if err != nil {
		return nil, err
	}

	return &build.Options{
		Plan:     p,
		Name:     req.Name,
		Root:     req.Root,
		Output:   req.Output,
		Platform: req.Platform,
		Keep:     req.Keep,
	}, nil
}

// Applies a change to the build counters.
func (s *Server) track(fn func(*stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Engine:  s.backend.Kind,
		Builds:  st.builds,
		Failed:  st.failed,
		Active:  st.active,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}
