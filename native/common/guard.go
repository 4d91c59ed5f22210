package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSwitch is an in-process PauseView toggled by operators.
type PauseSwitch struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSwitch() *PauseSwitch {
	return &PauseSwitch{paused: make(map[string]bool)}
}

func normaliseModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

// IsPaused implements PauseView.
func (s *PauseSwitch) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[normaliseModule(module)]
}

// SetPaused engages or releases the pause for module.
func (s *PauseSwitch) SetPaused(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normaliseModule(module)
	if paused {
		s.paused[key] = true
		return
	}
	delete(s.paused, key)
}
