package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrCampaignNotFound,
		ErrCampaignDenied,
		ErrBadRequest,
		ErrNoPermission,
		ErrPolicyHidden,
		ErrNotFound,
		ErrRateLimit,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestIsKnownEvent(t *testing.T) {
	for _, e := range []string{EventPlayerMoved, EventPlayerTeleported, EventSpawnUpdated, EventSpawnDeleted} {
		if !IsKnownEvent(e) {
			t.Fatalf("expected known event: %q", e)
		}
	}
	if IsKnownEvent("player-renamed") {
		t.Fatalf("expected unknown event rejected")
	}
}
