package wstoken

import (
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewService([]byte("test-secret"))
	now := time.Now()

	tok, err := s.Sign(Payload{WorkspaceID: "w1", KeyTier: TierRead, KeyHash: "h1", Scope: "/notes"}, now)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	payload, verr := s.Verify(tok, now.Add(time.Minute))
	if verr != nil {
		t.Fatalf("Verify failed: %v", verr)
	}
	if payload.WorkspaceID != "w1" || payload.KeyTier != TierRead || payload.KeyHash != "h1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestVerify_Expired(t *testing.T) {
	s := NewService([]byte("test-secret"))
	now := time.Now()

	tok, err := s.Sign(Payload{WorkspaceID: "w1", KeyTier: TierRead, KeyHash: "h1"}, now)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	_, verr := s.Verify(tok, now.Add(TokenTTL+time.Minute))
	if verr == nil || verr.Code != CodeExpired {
		t.Fatalf("expected TOKEN_EXPIRED, got %+v", verr)
	}
}

func TestVerify_InvalidSignature(t *testing.T) {
	s1 := NewService([]byte("secret-one"))
	s2 := NewService([]byte("secret-two"))
	now := time.Now()

	tok, _ := s1.Sign(Payload{WorkspaceID: "w1", KeyTier: TierRead, KeyHash: "h1"}, now)
	_, verr := s2.Verify(tok, now)
	if verr == nil || verr.Code != CodeInvalid {
		t.Fatalf("expected TOKEN_INVALID for wrong-secret verification, got %+v", verr)
	}
}

func TestConsume_SingleUse(t *testing.T) {
	s := NewService([]byte("test-secret"))
	now := time.Now()
	expiry := now.Add(time.Hour)

	if verr := s.Consume("nonce-1", expiry); verr != nil {
		t.Fatalf("first consumption should succeed, got %+v", verr)
	}
	verr := s.Consume("nonce-1", expiry)
	if verr == nil || verr.Code != CodeAlreadyUsed {
		t.Fatalf("expected TOKEN_ALREADY_USED on second consumption, got %+v", verr)
	}
}

func TestEventsForTier_Cumulative(t *testing.T) {
	read := EventsForTier(TierRead)
	appendTier := EventsForTier(TierAppend)
	write := EventsForTier(TierWrite)

	for _, e := range read {
		if !contains(appendTier, e) {
			t.Fatalf("append tier missing read event %q", e)
		}
	}
	for _, e := range appendTier {
		if !contains(write, e) {
			t.Fatalf("write tier missing append event %q", e)
		}
	}
	if !contains(write, "webhook.failed") || !contains(write, "settings.changed") {
		t.Fatal("write tier missing its own additional events")
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
