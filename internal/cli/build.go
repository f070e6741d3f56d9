package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruciblehq/boxd/internal/backend"
	"github.com/cruciblehq/boxd/internal/build"
	"github.com/cruciblehq/boxd/internal/client"
	"github.com/cruciblehq/boxd/internal/plan"
	"github.com/cruciblehq/boxd/internal/protocol"
	"github.com/pkg/errors"
)

// Represents the 'boxd build' command.
type BuildCmd struct {
	Plan     string `arg:"" optional:"" help:"Plan file." default:"boxd.yaml" type:"existingfile"`
	Context  string `short:"C" help:"Build context directory." default:"." type:"existingdir"`
	Output   string `short:"o" help:"Export the image and artifact descriptor into this directory." placeholder:"DIR"`
	Platform string `short:"p" help:"Target platform, e.g. linux/arm64. Defaults to the host."`
	Name     string `short:"t" help:"Reference name recorded on the exported image."`
	Keep     bool   `help:"Keep the environment after the build."`
	Remote   bool   `short:"r" help:"Run the build on the daemon."`
}

// Executes the build command.
//
// The plan is always parsed locally so syntax errors are reported before
// anything is started. The artifact is printed as JSON on stdout.
func (c *BuildCmd) Run(ctx context.Context) error {
	data, err := os.ReadFile(c.Plan)
	if err != nil {
		return fmt.Errorf("%w: %w", plan.ErrReadPlan, err)
	}

	p, err := plan.Parse(data)
	if err != nil {
		return errors.Wrap(err, c.Plan)
	}

	var artifact build.Artifact
	if c.Remote {
		artifact, err = c.runRemote(ctx, data)
	} else {
		artifact, err = c.runLocal(ctx, p)
	}
	if err != nil {
		return err
	}

	return printJSON(artifact)
}

// Runs the plan in this process.
func (c *BuildCmd) runLocal(ctx context.Context, p *plan.Plan) (build.Artifact, error) {
	b, err := backend.Open(engineConfig())
	if err != nil {
		return build.Artifact{}, err
	}
	defer b.Close()

	result, err := build.Run(ctx, b, build.Options{
		Plan:     p,
		Name:     c.Name,
		Root:     c.Context,
		Output:   c.Output,
		Platform: c.Platform,
		Keep:     c.Keep,
	})
	if err != nil {
		return build.Artifact{}, err
	}
	return result.Artifact, nil
}

// Sends the plan to the daemon. Paths are made absolute since the daemon
// does not share the CLI's working directory.
func (c *BuildCmd) runRemote(ctx context.Context, data []byte) (build.Artifact, error) {
	root, err := filepath.Abs(c.Context)
	if err != nil {
		return build.Artifact{}, err
	}

	var output string
	if c.Output != "" {
		if output, err = filepath.Abs(c.Output); err != nil {
			return build.Artifact{}, err
		}
	}

	result, err := client.New(RootCmd.Socket).Build(ctx, &protocol.BuildRequest{
		Plan:     string(data),
		Root:     root,
		Output:   output,
		Platform: c.Platform,
		Name:     c.Name,
		Keep:     c.Keep,
	})
	if err != nil {
		return build.Artifact{}, err
	}
	return result.Artifact, nil
}

// Writes v to stdout as indented JSON.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
