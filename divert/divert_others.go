//go:build !windows
// +build !windows

package divert

import "github.com/pkg/errors"

type sysAddress struct{}

type system struct{}

// System not supported on this platform, Open always fail.
func System(priority int16) Opener { return system{} }

func (system) Open(filter string, mode Mode) (Handle, error) {
	return nil, errors.WithStack(ErrNotSupported)
}
