package security

import "testing"

func TestHashTokenDependsOnPepper(t *testing.T) {
	a := HashToken("token", "pepper-one")
	b := HashToken("token", "pepper-two")
	if a == b {
		t.Fatal("different peppers must yield different hashes")
	}
	if a != HashToken("token", "pepper-one") {
		t.Fatal("hashing must be deterministic")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "correct horse battery") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Fatal("wrong password accepted")
	}
}

func TestNewRandomStringLengthAndUniqueness(t *testing.T) {
	a, err := NewRandomString(32)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	b, err := NewRandomString(32)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	if a == b {
		t.Fatal("two random tokens collided")
	}
	if len(a) < 32 {
		t.Fatalf("token too short: %d", len(a))
	}
}
