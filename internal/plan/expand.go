package plan

import (
	"maps"
	"strings"
)

// Maximum nesting depth when variables reference other variables.
const maxExpandDepth = 8

// Substitutes plan variables into path-like fields.
//
// The base image, copy paths, workdir paths, guard paths and env values are
// expanded. Run commands, entrypoints and cmds are left untouched because
// they are interpreted by a shell that has its own notion of "$NAME".
// References to unknown variables, and text that only looks like a
// reference, are kept exactly as written.
func (p *Plan) expand() {
	if len(p.Vars) == 0 {
		return
	}

	x := func(s string) string { return expandVars(s, p.Vars, 0) }

	p.From = x(p.From)

	for i, step := range p.Steps {
		switch s := step.(type) {
		case CopyStep:
			p.Steps[i] = CopyStep{Src: x(s.Src), Dest: x(s.Dest)}
		case WorkdirStep:
			p.Steps[i] = WorkdirStep{Path: x(s.Path)}
		case RunStep:
			s.Guard = Guard{Unless: x(s.Guard.Unless), If: x(s.Guard.If)}
			p.Steps[i] = s
		case EnvStep:
			env := maps.Clone(s.Env)
			for k, v := range env {
				env[k] = x(v)
			}
			p.Steps[i] = EnvStep{Env: env}
		}
	}
}

func expandVars(s string, vars map[string]string, depth int) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' {
			b.WriteByte(s[i])
			i++
			continue
		}

		name, n := varRef(s[i+1:])
		end := i + 1 + n
		v, ok := vars[name]
		if n == 0 || !ok || depth >= maxExpandDepth {
			b.WriteString(s[i:end])
		} else {
			b.WriteString(expandVars(v, vars, depth+1))
		}
		i = end
	}
	return b.String()
}

// Parses the reference following a '$' as "NAME" or "{NAME}", returning the
// name and the number of bytes it spans. Zero means no reference.
func varRef(s string) (string, int) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 || strings.IndexFunc(s[1:end], isNotNameRune) >= 0 {
			return "", 0
		}
		return s[1:end], end + 1
	}
	n := strings.IndexFunc(s, isNotNameRune)
	if n < 0 {
		n = len(s)
	}
	return s[:n], n
}

func isNotNameRune(r rune) bool {
	return r != '_' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9')
}
