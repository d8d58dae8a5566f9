package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeInvalidRange, "start %s must be before end %s", "a", "b")
	if CodeOf(err) != CodeInvalidRange {
		t.Errorf("Expected %s, got %s", CodeInvalidRange, CodeOf(err))
	}
	if err.Error() != "INVALID_RANGE: start a must be before end b" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeStorageError, cause, "upsert failed")

	if !errors.Is(err, cause) {
		t.Error("Expected wrapped cause to be found by errors.Is")
	}
	if CodeOf(err) != CodeStorageError {
		t.Errorf("Expected %s, got %s", CodeStorageError, CodeOf(err))
	}
}

func TestCodeOf_Defaults(t *testing.T) {
	if CodeOf(errors.New("plain")) != CodeStorageError {
		t.Error("Expected plain errors to map to STORAGE_ERROR")
	}
	if CodeOf(nil) != "" {
		t.Error("Expected empty code for nil error")
	}
}

func TestCodeOf_WrappedChain(t *testing.T) {
	inner := New(CodeLocationNotFound, "no such location")
	outer := fmt.Errorf("resolving selector: %w", inner)

	if CodeOf(outer) != CodeLocationNotFound {
		t.Errorf("Expected %s through fmt.Errorf wrapping, got %s", CodeLocationNotFound, CodeOf(outer))
	}
	if !HasCode(outer, CodeLocationNotFound) {
		t.Error("Expected HasCode to match through the chain")
	}
	if HasCode(outer, CodeAlreadyExists) {
		t.Error("Expected HasCode to reject a different code")
	}
}
