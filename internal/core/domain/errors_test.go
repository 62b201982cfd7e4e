package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "empty", secret: "  ", want: "***"},
		{name: "short key is hidden entirely", secret: "abc12345", want: "***"},
		{name: "eleven characters", secret: "sk-12345678", want: "***"},
		{name: "twelve characters", secret: "sk-123456789", want: "sk-12345***"},
		{name: "gemini key", secret: "AIzaSyABCDEFGHIJKLMNOPQRSTUVWXYZ012345678", want: "AIzaSyAB***"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MaskCredential(tc.secret)
			if got != tc.want {
				t.Fatalf("MaskCredential(%q) = %q, want %q", tc.secret, got, tc.want)
			}
			if strings.TrimSpace(tc.secret) != "" && strings.Contains(got, strings.TrimSpace(tc.secret)) {
				t.Fatalf("full secret leaked: %q", got)
			}
		})
	}
}

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(ErrInvalidInput, "parse request", cause)
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause, got %v", err)
	}
	if !IsKind(err, ErrInvalidInput) || IsKind(err, ErrTemporary) {
		t.Fatalf("unexpected kind match for %v", err)
	}
}
