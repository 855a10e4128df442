package backup

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := deriveKey("mypassphrase", salt)
	key2 := deriveKey("mypassphrase", salt)

	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
}

func TestDeriveKeyDifferentPassphrases(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := deriveKey("password1", salt)
	key2 := deriveKey("password2", salt)

	if bytes.Equal(key1, key2) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	original := []byte("This is test database content with some data in it.")
	passphrase := "test-passphrase-123"

	encrypted, err := Encrypt(original, passphrase)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if bytes.Contains(encrypted, original) {
		t.Error("encrypted output should not contain the plaintext")
	}
	if len(encrypted) < saltSize+nonceSize+len(original) {
		t.Errorf("encrypted length = %d, too small", len(encrypted))
	}

	decrypted, err := Decrypt(encrypted, passphrase)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(original, decrypted) {
		t.Error("decrypted content should match original")
	}
}

func TestEncryptFreshSaltPerCall(t *testing.T) {
	plaintext := []byte("same input")

	enc1, err := Encrypt(plaintext, "password")
	if err != nil {
		t.Fatalf("encrypt 1: %v", err)
	}
	enc2, err := Encrypt(plaintext, "password")
	if err != nil {
		t.Fatalf("encrypt 2: %v", err)
	}

	if bytes.Equal(enc1[:saltSize], enc2[:saltSize]) {
		t.Error("two encryptions should not share a salt")
	}
	if bytes.Equal(enc1, enc2) {
		t.Error("two encryptions of the same input should not be equal")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret data"), "correct-password")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := Decrypt(encrypted, "wrong-password"); err == nil {
		t.Fatal("expected error with wrong passphrase")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret data"), "password")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Flip a bit after the salt + nonce header
	encrypted[saltSize+nonceSize+1] ^= 0xFF

	if _, err := Decrypt(encrypted, "password"); err == nil {
		t.Fatal("expected error with tampered ciphertext")
	}
}

func TestEncryptDecryptEmpty(t *testing.T) {
	encrypted, err := Encrypt([]byte{}, "password")
	if err != nil {
		t.Fatalf("encrypt empty: %v", err)
	}

	decrypted, err := Decrypt(encrypted, "password")
	if err != nil {
		t.Fatalf("decrypt empty: %v", err)
	}
	if len(decrypted) != 0 {
		t.Errorf("expected empty plaintext, got %d bytes", len(decrypted))
	}
}

func TestDecryptTooSmall(t *testing.T) {
	if _, err := Decrypt([]byte("too short"), "password"); err == nil {
		t.Fatal("expected error with data too small")
	}
}
