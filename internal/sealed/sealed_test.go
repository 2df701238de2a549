package sealed

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestSealOpen(t *testing.T) {
	box, err := New(testKey(7))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ct, iv, err := box.Seal("see you at eight")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if ct == "see you at eight" {
		t.Fatal("Expected ciphertext to differ from plaintext")
	}

	nonce, _ := base64.StdEncoding.DecodeString(iv)
	if len(nonce) != NonceSize {
		t.Errorf("Expected %d byte iv, got %d", NonceSize, len(nonce))
	}

	plain, err := box.Open(ct, iv)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if plain != "see you at eight" {
		t.Errorf("Expected original text, got %q", plain)
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	a, _ := New(testKey(1))
	b, _ := New(testKey(2))

	ct, iv, err := a.Seal("secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := b.Open(ct, iv); err == nil {
		t.Error("Expected Open with the wrong key to fail")
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short")); err != ErrKeySize {
		t.Errorf("Expected ErrKeySize, got %v", err)
	}
}

func TestParseKey(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(testKey(9))
	key, err := ParseKey(encoded)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if !bytes.Equal(key, testKey(9)) {
		t.Error("Key mismatch")
	}
}
