package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherHashAndVerify(t *testing.T) {
	hasher := PasswordHasher{Cost: bcrypt.MinCost}

	digest, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if digest == "" || digest == "correct horse battery staple" {
		t.Fatalf("expected bcrypt digest got %q", digest)
	}

	if !hasher.Verify(digest, "correct horse battery staple") {
		t.Fatal("expected digest to verify against original password")
	}
	if hasher.Verify(digest, "wrong password") {
		t.Fatal("expected verification to fail for wrong password")
	}
}

func TestPasswordHasherSaltsDigests(t *testing.T) {
	hasher := PasswordHasher{Cost: bcrypt.MinCost}

	first, err := hasher.Hash("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := hasher.Hash("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("expected salted digests to differ")
	}
}

func TestPasswordHasherRejectsGarbageDigest(t *testing.T) {
	hasher := PasswordHasher{}
	if hasher.Verify("not-a-bcrypt-digest", "secret") {
		t.Fatal("expected verification to fail for malformed digest")
	}
}
