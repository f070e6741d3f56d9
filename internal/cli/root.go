package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/boxd/internal"
	"github.com/cruciblehq/boxd/internal/backend"
	"github.com/cruciblehq/boxd/internal/build"
	"github.com/cruciblehq/boxd/internal/client"
	"github.com/cruciblehq/boxd/internal/logging"
	"github.com/cruciblehq/boxd/internal/paths"
	"github.com/cruciblehq/boxd/internal/protocol"
)

// Represents the root command for boxd.
var RootCmd struct {
	Quiet     bool   `short:"q" help:"Suppress informational output."`
	Verbose   bool   `short:"v" help:"Enable verbose output."`
	Debug     bool   `short:"d" help:"Enable debug output."`
	Socket    string `short:"s" help:"Override the default Unix socket path." placeholder:"PATH"`
	Engine    string `short:"e" help:"Engine builds run against (${enum})." enum:"host,containerd" default:"${engine}"`
	Roots     string `help:"Directory holding host engine root filesystems." placeholder:"DIR"`
	Address   string `help:"Containerd socket address." placeholder:"PATH"`
	Namespace string `help:"Containerd namespace." placeholder:"NAME"`

	Build   BuildCmd   `cmd:"" help:"Execute a plan."`
	Inspect InspectCmd `cmd:"" help:"Show the metadata of an exported image."`
	Start   StartCmd   `cmd:"" help:"Start the daemon."`
	Status  StatusCmd  `cmd:"" help:"Show daemon status."`
	Stop    StopCmd    `cmd:"" help:"Stop the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
//
// Flags not given on the command line are read from the JSON config file,
// when one exists.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Executes declarative build plans.\n\nBuilds run locally or on the boxd daemon, against a host directory or containerd."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, paths.ConfigFile()),
		kong.Vars{
			"version": internal.VersionString(),
			"engine":  internal.DefaultEngine(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	internal.SetQuiet(RootCmd.Quiet || internal.IsQuiet())
	internal.SetVerbose(RootCmd.Verbose || internal.IsVerbose())
	internal.SetDebug(RootCmd.Debug || internal.IsDebug())

	logging.Configure(os.Stderr, logging.Options{
		Quiet:   internal.IsQuiet(),
		Verbose: internal.IsVerbose(),
		Debug:   internal.IsDebug(),
	})
}

// Returns the engine configuration selected by the global flags.
func engineConfig() backend.Config {
	return backend.Config{
		Kind:                RootCmd.Engine,
		Roots:               RootCmd.Roots,
		ContainerdAddress:   RootCmd.Address,
		ContainerdNamespace: RootCmd.Namespace,
	}
}

// Returns the process exit code for an error returned by [Execute].
//
// A failing run step propagates its command's exit code, both for local
// builds and for builds executed by the daemon. Any other error maps to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var cmdErr *build.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return cmdErr.ExitCode
	}

	var remote *client.RemoteError
	if errors.As(err, &remote) && remote.Kind == protocol.ErrorKindCommand && remote.ExitCode > 0 {
		return remote.ExitCode
	}

	return 1
}
