package common

import "errors"

// ErrModulePaused is returned when a mutation hits a paused module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is currently halted by the
// operator. The lending and crosschain engines consult it before every
// state mutation.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view means pausing
// is not wired and all calls proceed.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
