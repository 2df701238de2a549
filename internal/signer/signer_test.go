package signer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSigner(t *testing.T) *Ed25519Signer {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	s, err := NewEd25519Signer(key)
	if err != nil {
		t.Fatalf("NewEd25519Signer failed: %v", err)
	}
	return s
}

func TestSignAndVerify(t *testing.T) {
	s := newTestSigner(t)

	env, err := s.Sign(context.Background(), []byte(`{"action":"GetContacts"}`))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	address, err := Verify(env)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if address != s.Address() {
		t.Errorf("Expected address %s, got %s", s.Address(), address)
	}
	if len(address) != 43 {
		t.Errorf("Expected 43 character address, got %d", len(address))
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	s := newTestSigner(t)

	env, err := s.Sign(context.Background(), []byte(`{"action":"Send"}`))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	env.Payload = []byte(`{"action":"RemoveContact"}`)

	if _, err := Verify(env); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsForeignOwner(t *testing.T) {
	a := newTestSigner(t)
	b := newTestSigner(t)

	env, err := a.Sign(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	env.Owner = b.owner

	if _, err := Verify(env); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestSignHonoursCancelledContext(t *testing.T) {
	s := newTestSigner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Sign(ctx, []byte("payload")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := SaveKeyFile(path, key); err != nil {
		t.Fatalf("SaveKeyFile failed: %v", err)
	}

	loaded, err := LoadKeyFile(path)
	if err != nil {
		t.Fatalf("LoadKeyFile failed: %v", err)
	}

	original, _ := NewEd25519Signer(key)
	if loaded.Address() != original.Address() {
		t.Errorf("Expected address %s, got %s", original.Address(), loaded.Address())
	}
}

func TestLoadKeyFileMissing(t *testing.T) {
	_, err := LoadKeyFile(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Sign(context.Background(), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}
