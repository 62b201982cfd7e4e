package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNoInput           = errors.New("no input provided")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrTemporary         = errors.New("temporary failure")
	ErrAllBackendsFailed = errors.New("all generative backends failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// BackendFailure is one failed (credential, model) attempt.
type BackendFailure struct {
	Provider   string `json:"provider"`
	Credential string `json:"credential"`
	Model      string `json:"model"`
	Message    string `json:"message"`
}

// AllBackendsFailedError is returned once every configured backend pair has failed.
// Credentials are stored masked.
type AllBackendsFailedError struct {
	Operation string
	Failures  []BackendFailure
}

func (e *AllBackendsFailedError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return ErrAllBackendsFailed.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s/%s[%s]: %s", f.Provider, f.Model, f.Credential, f.Message))
	}
	op := e.Operation
	if op == "" {
		op = "generate"
	}
	return fmt.Sprintf("%s: %s: %s", op, ErrAllBackendsFailed.Error(), strings.Join(parts, "; "))
}

func (e *AllBackendsFailedError) Unwrap() error {
	return ErrAllBackendsFailed
}

// ByCredential groups failure messages as credential -> model -> message.
func (e *AllBackendsFailedError) ByCredential() map[string]map[string]string {
	out := make(map[string]map[string]string)
	if e == nil {
		return out
	}
	for _, f := range e.Failures {
		models, ok := out[f.Credential]
		if !ok {
			models = make(map[string]string)
			out[f.Credential] = models
		}
		models[f.Model] = f.Message
	}
	return out
}

// Credentials lists masked credentials in sorted order.
func (e *AllBackendsFailedError) Credentials() []string {
	grouped := e.ByCredential()
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const (
	credentialPrefixLen   = 8
	minMaskableCredential = 12
)

// MaskCredential keeps the first 8 characters of a secret. Secrets shorter
// than 12 characters are replaced entirely.
func MaskCredential(secret string) string {
	runes := []rune(strings.TrimSpace(secret))
	if len(runes) < minMaskableCredential {
		return "***"
	}
	return string(runes[:credentialPrefixLen]) + "***"
}
