// Package backend selects and opens the engine builds run against.
package backend

import (
	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/hostfs"
	"github.com/cruciblehq/boxd/internal/paths"
	"github.com/cruciblehq/boxd/internal/runtime"
	"github.com/pkg/errors"
)

const (
	KindHost       = "host"       // Directory-backed environments on the host.
	KindContainerd = "containerd" // Containers managed by containerd.
)

var ErrUnknownEngine = errors.New("unknown engine")

// Selects and configures an engine.
type Config struct {
	Kind                string // Engine kind. Empty uses [KindHost].
	Roots               string // Root filesystem directory for the host engine. Empty uses the default.
	ContainerdAddress   string // Containerd socket address. Empty uses the runtime default.
	ContainerdNamespace string // Containerd namespace. Empty uses the runtime default.
}

// An opened engine and the resources it holds.
type Backend struct {
	engine.Engine
	Kind  string
	close func() error
}

// Opens the engine named by cfg.Kind.
//
// The returned backend must be closed when no longer needed.
func Open(cfg Config) (*Backend, error) {
	switch cfg.Kind {
	case "", KindHost:
		roots := cfg.Roots
		if roots == "" {
			roots = paths.Roots()
		}
		return &Backend{
			Engine: hostfs.New(roots),
			Kind:   KindHost,
			close:  func() error { return nil },
		}, nil

	case KindContainerd:
		address := cfg.ContainerdAddress
		if address == "" {
			address = runtime.DefaultAddress
		}
		namespace := cfg.ContainerdNamespace
		if namespace == "" {
			namespace = runtime.DefaultNamespace
		}
		rt, err := runtime.New(address, namespace)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Engine: rt,
			Kind:   KindContainerd,
			close:  rt.Close,
		}, nil

	default:
		return nil, errors.Wrapf(ErrUnknownEngine, "%q (want %s or %s)", cfg.Kind, KindHost, KindContainerd)
	}
}

// Releases the engine's resources.
func (b *Backend) Close() error {
	return b.close()
}
