package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "slug taken", err: fmt.Errorf("%w: eiffel-tower-tour", ErrSlugTaken), wantCode: "DB001"},
		{name: "open circuit", err: fmt.Errorf("row 4: %w: circuit breaker is open", ErrCircuitOpen), wantCode: "DB003"},
		{name: "store unavailable", err: fmt.Errorf("insert: %w", ErrStoreUnavailable), wantCode: "DB004"},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantCode: "DB005"},
		{name: "cancelled import", err: errors.New("import aborted: context canceled"), wantCode: "JOB005"},
		{name: "deadline", err: errors.New("context deadline exceeded"), wantCode: "DB006"},
		{name: "job not found", err: fmt.Errorf("%w: abc", ErrJobNotFound), wantCode: "JOB001"},
		{name: "invalid transition", err: fmt.Errorf("%w: completed -> processing", ErrInvalidTransition), wantCode: "JOB002"},
		{name: "too many jobs", err: ErrTooManyJobs, wantCode: "JOB003"},
		{name: "template inactive", err: fmt.Errorf("%w: experience-v0", ErrTemplateInactive), wantCode: "TPL002"},
		{name: "required field", err: errors.New("row 2: title: required field is empty"), wantCode: "VAL001"},
		{name: "duplicate slug", err: errors.New(`row 3: slug: duplicate slug "eiffel-tower-tour", already used by row 1`), wantCode: "VAL002"},
		{name: "file too large", err: fmt.Errorf("%w: 200 bytes", ErrFileTooLarge), wantCode: "FILE001"},
		{name: "empty file", err: ErrEmptyFile, wantCode: "FILE003"},
		{name: "case insensitive", err: errors.New("Invalid JSON: unexpected end"), wantCode: "VAL007"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v) code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyJobs)

	expected := "Too many imports are running (Code: JOB003). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: ErrJobNotFound, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("get job: %w", ErrJobNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "Import job not found" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrJobNotFound) {
			t.Error("errors.Is through UserError should reach the sentinel")
		}
	})
}
