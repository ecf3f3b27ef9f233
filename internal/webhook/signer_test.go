package webhook

import "testing"

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"event":"file.created"}`)
	a := Sign(1700000000, body, "s3cr3t")
	b := Sign(1700000000, body, "s3cr3t")
	if a != b {
		t.Fatal("signing the same input twice should be deterministic")
	}
	if len(a) < len("sha256=")+64 {
		t.Fatalf("unexpected signature shape: %s", a)
	}
}

func TestSign_DifferentSecretsDiffer(t *testing.T) {
	body := []byte(`{"event":"file.created"}`)
	a := Sign(1700000000, body, "s3cr3t")
	b := Sign(1700000000, body, "other")
	if a == b {
		t.Fatal("different secrets must produce different signatures")
	}
}

func TestSign_DifferentTimestampsDiffer(t *testing.T) {
	body := []byte(`{"event":"file.created"}`)
	a := Sign(1700000000, body, "s3cr3t")
	b := Sign(1700000001, body, "s3cr3t")
	if a == b {
		t.Fatal("different timestamps must produce different signatures")
	}
}
