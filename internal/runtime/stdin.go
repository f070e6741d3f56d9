package runtime

import (
	"io"
	"sync"
)

// Reader that runs a hook the first time its source reports io.EOF.
type eofHook struct {
	io.Reader
	fire func()
}

// Wraps r so that fn runs once r is exhausted. Later EOFs and other errors
// leave fn alone.
func onEOF(r io.Reader, fn func()) io.Reader {
	return &eofHook{Reader: r, fire: sync.OnceFunc(fn)}
}

func (h *eofHook) Read(p []byte) (int, error) {
	n, err := h.Reader.Read(p)
	if err == io.EOF {
		h.fire()
	}
	return n, err
}
