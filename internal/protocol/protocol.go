package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Current wire format version. Envelopes with a different version are
// rejected.
const Version = 1

var (
	ErrMalformed = errors.New("malformed message")
	ErrVersion   = errors.New("unsupported protocol version")
)

// Names the operation carried by an [Envelope].
type Command string

const (
	CmdBuild    Command = "build"    // Execute a plan.
	CmdStatus   Command = "status"   // Query daemon status.
	CmdShutdown Command = "shutdown" // Stop the daemon.
	CmdOK       Command = "ok"       // Successful response.
	CmdError    Command = "error"    // Failed response.
)

// Top-level message exchanged over the socket.
type Envelope struct {
	Version int             `json:"version"`
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Serializes a command and its payload into an envelope.
//
// A nil payload produces an envelope without one. The result carries no
// trailing newline.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Version: Version, Command: cmd}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		env.Payload = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return data, nil
}

// Parses an envelope, returning it along with its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil, errors.Wrap(ErrMalformed, "empty message")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Version != Version {
		return nil, nil, errors.Wrapf(ErrVersion, "got %d, want %d", env.Version, Version)
	}
	if env.Command == "" {
		return nil, nil, errors.Wrap(ErrMalformed, "missing command")
	}

	return &env, env.Payload, nil
}

// Decodes a raw payload into a value of type T.
//
// An absent payload decodes to the zero value.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return &v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &v, nil
}
