package gap_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/gogap/internal/gap"
)

func TestProtocolErrorIsMatchesAnyStatus(t *testing.T) {
	t.Parallel()

	err := gap.NewProtocolError("connect", gap.HCIStatusPageTimeout)

	var target *gap.ProtocolError
	if !errors.As(err, &target) {
		t.Fatal("errors.As failed to extract *ProtocolError")
	}
	if target.Status != gap.HCIStatusPageTimeout {
		t.Errorf("Status = %v, want %v", target.Status, gap.HCIStatusPageTimeout)
	}

	other := gap.NewProtocolError("pair", gap.HCIStatusAuthenticationFailure)
	if !errors.Is(err, other) {
		t.Error("errors.Is should match any *ProtocolError regardless of Op/Status")
	}
	if errors.Is(err, gap.ErrTimeout) {
		t.Error("a ProtocolError should not match an unrelated sentinel")
	}
}

func TestProtocolErrorMessageIncludesOpAndStatus(t *testing.T) {
	t.Parallel()

	err := gap.NewProtocolError("create-connection", gap.HCIStatusConnectionTimeout)
	want := "gap: create-connection: hci status connection-timeout"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestHCIStatusOk(t *testing.T) {
	t.Parallel()

	if !gap.HCIStatusSuccess.Ok() {
		t.Error("HCIStatusSuccess.Ok() = false, want true")
	}
	if gap.HCIStatusUnspecifiedError.Ok() {
		t.Error("HCIStatusUnspecifiedError.Ok() = true, want false")
	}
}

func TestHCIStatusStringUnknownValue(t *testing.T) {
	t.Parallel()

	got := gap.HCIStatus(0xEE).String()
	if got != "status(0xee)" {
		t.Errorf("String() = %q, want %q", got, "status(0xee)")
	}
}
