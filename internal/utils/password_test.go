package utils

import (
	"errors"
	"testing"
)

func TestHashPasswordArgon2(t *testing.T) {
	hash, err := HashPasswordArgon2("test-password-123")
	if err != nil {
		t.Fatalf("HashPasswordArgon2() error = %v", err)
	}
	if !IsArgon2Hash(hash) {
		t.Errorf("HashPasswordArgon2() hash format invalid: %s", hash)
	}

	other, err := HashPasswordArgon2("test-password-123")
	if err != nil {
		t.Fatalf("HashPasswordArgon2() error = %v", err)
	}
	if hash == other {
		t.Error("HashPasswordArgon2() produced identical hashes, salt not random")
	}
}

func TestVerifyPasswordArgon2(t *testing.T) {
	password := "test-password-123"
	hash, err := HashPasswordArgon2(password)
	if err != nil {
		t.Fatalf("HashPasswordArgon2() error = %v", err)
	}

	t.Run("valid password", func(t *testing.T) {
		valid, err := VerifyPasswordArgon2(password, hash)
		if err != nil {
			t.Fatalf("VerifyPasswordArgon2() error = %v", err)
		}
		if !valid {
			t.Error("VerifyPasswordArgon2() = false, want true")
		}
	})

	t.Run("invalid password", func(t *testing.T) {
		valid, err := VerifyPasswordArgon2("wrong-password", hash)
		if err != nil {
			t.Fatalf("VerifyPasswordArgon2() error = %v", err)
		}
		if valid {
			t.Error("VerifyPasswordArgon2() = true, want false")
		}
	})

	t.Run("invalid hash format", func(t *testing.T) {
		_, err := VerifyPasswordArgon2(password, "invalid-hash")
		if !errors.Is(err, ErrInvalidHashFormat) {
			t.Errorf("VerifyPasswordArgon2() error = %v, want ErrInvalidHashFormat", err)
		}
	})
}
