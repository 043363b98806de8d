//go:build !visa

package visa

import (
	"errors"
	"testing"
)

func TestNativeWithoutBuildTag(t *testing.T) {
	_, err := NewResourceManager("ni").Open("GPIB0::16::INSTR", Config{})
	if !errors.Is(err, ErrNativeUnavailable) {
		t.Errorf("expected ErrNativeUnavailable, got %v", err)
	}
}
