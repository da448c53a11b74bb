package platform

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap("send", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}

	err := Wrap("create channel", ErrForbidden)
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *CallError, got %T", err)
	}
	if callErr.Op != "create channel" {
		t.Errorf("Op = %q", callErr.Op)
	}
	if !errors.Is(err, ErrForbidden) {
		t.Error("CallError should unwrap to the cause")
	}
	if err.Error() != "create channel: missing permission" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestPermissionHas(t *testing.T) {
	p := PermViewChannel | PermSendMessages
	if !p.Has(PermViewChannel) {
		t.Error("expected view")
	}
	if p.Has(PermViewChannel | PermManageChannels) {
		t.Error("should not report manage")
	}
}
