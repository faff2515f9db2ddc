package tts

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindAssetProvisioning, "asset provisioning"},
		{KindSynthesis, "synthesis"},
		{KindIO, "io"},
		{KindConfiguration, "configuration"},
		{ErrorKind(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNarrationErrorMessage(t *testing.T) {
	err := NewError(KindSynthesis, "kokoro", "create", errors.New("voice not found"))
	if got := err.Error(); got != "kokoro: create: voice not found" {
		t.Errorf("unexpected message: %q", got)
	}

	err.WithContext("suggestion", "af_bella")
	if !strings.Contains(err.Error(), "did you mean af_bella?") {
		t.Errorf("suggestion missing from message: %q", err.Error())
	}

	var empty NarrationError
	if empty.Error() != "unknown narration error" {
		t.Errorf("unexpected empty message: %q", empty.Error())
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := NewError(KindIO, "service", "write wav", ErrInvalidCacheDir)
	wrapped := fmt.Errorf("render line 3: %w", base)

	if !IsKind(wrapped, KindIO) {
		t.Errorf("expected KindIO, got %v", KindOf(wrapped))
	}
	if !errors.Is(wrapped, ErrInvalidCacheDir) {
		t.Error("errors.Is should see the sentinel through NarrationError")
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("plain errors should have no kind")
	}
}
