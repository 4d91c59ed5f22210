package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseSwitch(t *testing.T) {
	if err := Guard(nil, "cookiejar"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	sw := NewPauseSwitch()
	if err := Guard(sw, "cookiejar"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sw.SetPaused(" CookieJar ", true)
	if err := Guard(sw, "cookiejar"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(sw, ""); err != nil {
		t.Fatalf("empty module must not block: %v", err)
	}
	sw.SetPaused("cookiejar", false)
	if sw.IsPaused("cookiejar") {
		t.Fatalf("expected pause released")
	}
	var nilSwitch *PauseSwitch
	if nilSwitch.IsPaused("cookiejar") {
		t.Fatalf("nil switch must report unpaused")
	}
}
