package capability

import (
	"testing"
	"time"

	"github.com/albri/mdplane-sub004/internal/domain"
)

func baseKey() *domain.CapabilityKey {
	return &domain.CapabilityKey{
		ID:          "k1",
		WorkspaceID: "w1",
		Permission:  domain.PermissionRead,
		ScopeType:   domain.ScopeWorkspace,
	}
}

func TestEvaluate_NilKeyIsNotFound(t *testing.T) {
	d := Evaluate(nil, "r", domain.PermissionRead, "", time.Now())
	if d.Ok || d.Status != 404 || d.Code != CodeNotFound {
		t.Fatalf("expected 404 NOT_FOUND, got %+v", d)
	}
}

func TestEvaluate_Revoked(t *testing.T) {
	k := baseKey()
	now := time.Now()
	k.RevokedAt = &now
	d := Evaluate(k, "r", domain.PermissionRead, "", now)
	if d.Ok || d.Status != 410 || d.Code != CodeKeyRevoked {
		t.Fatalf("expected 410 KEY_REVOKED, got %+v", d)
	}
}

func TestEvaluate_ExpiredLooksLikeNotFound(t *testing.T) {
	k := baseKey()
	past := time.Now().Add(-time.Hour)
	k.ExpiresAt = &past
	d := Evaluate(k, "r", domain.PermissionRead, "", time.Now())
	if d.Ok || d.Status != 404 || d.Code != CodeNotFound {
		t.Fatalf("expired key must be indistinguishable from not-found, got %+v", d)
	}
}

func TestEvaluate_WrongTierIsNotFound(t *testing.T) {
	k := baseKey()
	k.Permission = domain.PermissionRead
	d := Evaluate(k, "w", domain.PermissionRead, "", time.Now())
	if d.Ok || d.Status != 404 {
		t.Fatalf("read key on write tier should be 404, got %+v", d)
	}
}

func TestEvaluate_TieredPermissionAllowsHigherOnLowerTier(t *testing.T) {
	k := baseKey()
	k.Permission = domain.PermissionWrite
	d := Evaluate(k, "a", domain.PermissionAppend, "", time.Now())
	if !d.Ok {
		t.Fatalf("write key should be accepted on append tier, got %+v", d)
	}
}

func TestEvaluate_InsufficientRequiredPermission(t *testing.T) {
	k := baseKey()
	k.Permission = domain.PermissionRead
	d := Evaluate(k, "r", domain.PermissionWrite, "", time.Now())
	if d.Ok || d.Status != 404 {
		t.Fatalf("expected 404 for insufficient required permission, got %+v", d)
	}
}

func TestEvaluate_FileScopeExactMatch(t *testing.T) {
	k := baseKey()
	k.ScopeType = domain.ScopeFile
	k.ScopePath = "/notes/a.md"

	if d := Evaluate(k, "r", domain.PermissionRead, "/notes/a.md", time.Now()); !d.Ok {
		t.Fatalf("exact file scope match should allow, got %+v", d)
	}
	if d := Evaluate(k, "r", domain.PermissionRead, "/notes/b.md", time.Now()); d.Ok || d.Status != 404 {
		t.Fatalf("mismatched file scope should be 404, got %+v", d)
	}
}

func TestEvaluate_FolderScopePrefix(t *testing.T) {
	k := baseKey()
	k.ScopeType = domain.ScopeFolder
	k.ScopePath = "/a"

	if d := Evaluate(k, "r", domain.PermissionRead, "/a", time.Now()); !d.Ok {
		t.Fatalf("folder scope root should allow, got %+v", d)
	}
	if d := Evaluate(k, "r", domain.PermissionRead, "/a/b", time.Now()); !d.Ok {
		t.Fatalf("folder scope subtree should allow, got %+v", d)
	}
	if d := Evaluate(k, "r", domain.PermissionRead, "/ab", time.Now()); d.Ok || d.Status != 404 {
		t.Fatalf("sibling path with shared prefix but no separator should 404, got %+v", d)
	}
}
