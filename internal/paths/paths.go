package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	daemonName = "boxd"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/boxd or /run/user/<uid>/boxd
//	macOS:   ~/Library/Caches/boxd/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return filepath.Join(xdg.CacheHome, daemonName, "run")
}

// Default path to the Unix domain socket for CLI-to-daemon communication.
//
//	Linux:   $XDG_RUNTIME_DIR/boxd/boxd.sock
//	macOS:   ~/Library/Caches/boxd/run/boxd.sock
func Socket() string {
	return filepath.Join(Runtime(), "boxd.sock")
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/boxd/boxd.pid
//	macOS:   ~/Library/Caches/boxd/run/boxd.pid
func PIDFile() string {
	return filepath.Join(Runtime(), "boxd.pid")
}

// Directory holding host engine root filesystems, one subdirectory per build.
//
//	Linux:   $XDG_CACHE_HOME/boxd/roots
//	macOS:   ~/Library/Caches/boxd/roots
func Roots() string {
	return filepath.Join(xdg.CacheHome, daemonName, "roots")
}

// Path to the optional JSON configuration file read by the CLI.
//
//	Linux:   $XDG_CONFIG_HOME/boxd/config.json
//	macOS:   ~/Library/Application Support/boxd/config.json
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, daemonName, "config.json")
}
