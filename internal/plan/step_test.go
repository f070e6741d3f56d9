package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardHolds(t *testing.T) {
	tests := []struct {
		name   string
		guard  Guard
		exists bool
		want   bool
	}{
		{"zero guard, dir absent", Guard{}, false, true},
		{"zero guard, dir present", Guard{}, true, true},
		{"unless, dir absent", Guard{Unless: "vendor"}, false, true},
		{"unless, dir present", Guard{Unless: "vendor"}, true, false},
		{"if, dir absent", Guard{If: "vendor"}, false, false},
		{"if, dir present", Guard{If: "vendor"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.guard.Holds(tt.exists))
		})
	}
}

func TestGuardPath(t *testing.T) {
	assert.Equal(t, "", Guard{}.Path("/app"))
	assert.Equal(t, "/app/vendor", Guard{Unless: "vendor"}.Path("/app"))
	assert.Equal(t, "/vendor", Guard{Unless: "vendor"}.Path(""))
	assert.Equal(t, "/opt/cache", Guard{If: "/opt/cache"}.Path("/app"))
	assert.Equal(t, "/vendor", Guard{If: "../vendor"}.Path("/app"))
}

func TestStepKinds(t *testing.T) {
	steps := map[Kind]Step{
		KindCopy:       CopyStep{},
		KindWorkdir:    WorkdirStep{},
		KindRun:        RunStep{},
		KindExecConfig: ExecConfigStep{},
		KindEnv:        EnvStep{},
		KindShell:      ShellStep{},
	}
	for kind, step := range steps {
		assert.Equal(t, kind, step.Kind())
	}
}
