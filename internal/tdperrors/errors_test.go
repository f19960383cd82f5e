package tdperrors

import (
	"errors"
	"strings"
	"testing"
)

func TestCollectionStructureError_UnwrapsAndFormats(t *testing.T) {
	inner := errors.New("missing mandatory directory")
	err := &CollectionStructureError{Path: "/collections/hdfs", Err: inner}
	if !errors.Is(err, err) {
		t.Fatal("expected errors.Is to recognize itself")
	}
	if errors.Unwrap(err) != inner {
		t.Errorf("expected Unwrap to return the inner error")
	}
	if err.Error() == "" {
		t.Error("expected a non-empty message")
	}
}

func TestCollectionStructureError_NilInnerErrorHasFallbackMessage(t *testing.T) {
	err := &CollectionStructureError{Path: "/collections/hdfs"}
	if err.Error() == "" {
		t.Error("expected a non-empty fallback message")
	}
}

func TestPolicyDeniedError_SingleVsMultipleMessages(t *testing.T) {
	single := &PolicyDeniedError{Messages: []string{"only one violation"}}
	if single.Error() != "policy denied deployment: only one violation" {
		t.Errorf("unexpected single-message format: %q", single.Error())
	}

	multi := &PolicyDeniedError{Messages: []string{"first", "second"}}
	if multi.Error() == single.Error() {
		t.Error("expected the multi-message format to differ from the single-message one")
	}
}

func TestNothingToResumeError_IncludesState(t *testing.T) {
	err := &NothingToResumeError{State: "SUCCESS"}
	if !strings.Contains(err.Error(), "SUCCESS") {
		t.Errorf("expected the message to name the state, got %q", err.Error())
	}
}

func TestErrorsAs_MatchesConcreteType(t *testing.T) {
	var err error = &MissingHostForOperationError{Operation: "hdfs_namenode_start", Host: "node9"}
	var target *MissingHostForOperationError
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to match MissingHostForOperationError")
	}
	if target.Host != "node9" {
		t.Errorf("expected host node9, got %s", target.Host)
	}
}
