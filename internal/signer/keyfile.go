package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// keyFile is an OKP JSON web key.
type keyFile struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	D   string `json:"d"`
	X   string `json:"x"`
}

func SaveKeyFile(path string, key ed25519.PrivateKey) error {
	kf := keyFile{
		Kty: "OKP",
		Crv: "Ed25519",
		D:   encode(key.Seed()),
		X:   encode(key.Public().(ed25519.PublicKey)),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// LoadKeyFile reads a key written by SaveKeyFile. A missing or unreadable
// file is reported as ErrUnavailable.
func LoadKeyFile(path string) (*Ed25519Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w: %w", ErrUnavailable, err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w: %w", ErrUnavailable, err)
	}
	if kf.Kty != "OKP" || kf.Crv != "Ed25519" {
		return nil, fmt.Errorf("unsupported key type %s/%s: %w", kf.Kty, kf.Crv, ErrUnavailable)
	}

	seed, err := base64.RawURLEncoding.DecodeString(kf.D)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, errors.Join(ErrUnavailable, fmt.Errorf("invalid key seed"))
	}
	return NewEd25519Signer(ed25519.NewKeyFromSeed(seed))
}
