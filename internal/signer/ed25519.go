package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/zeebo/blake3"
)

var ErrInvalidSignature = errors.New("invalid envelope signature")

type claims struct {
	jwt.RegisteredClaims
	Digest string `json:"digest"`
}

type Ed25519Signer struct {
	key     ed25519.PrivateKey
	owner   string
	address string
	now     func() time.Time
}

func NewEd25519Signer(key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes: %w", ed25519.PrivateKeySize, ErrUnavailable)
	}
	pub := key.Public().(ed25519.PublicKey)
	return &Ed25519Signer{
		key:     key,
		owner:   encode(pub),
		address: AddressOf(pub),
		now:     time.Now,
	}, nil
}

func GenerateKey() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// AddressOf derives the 43 character account address of a public key.
func AddressOf(pub ed25519.PublicKey) string {
	sum := blake3.Sum256(pub)
	return encode(sum[:])
}

func (s *Ed25519Signer) Address() string { return s.address }

func (s *Ed25519Signer) Sign(ctx context.Context, payload []byte) (protocol.SignedEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return protocol.SignedEnvelope{}, err
	}

	digest := blake3.Sum256(payload)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.address,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
		Digest: encode(digest[:]),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c).SignedString(s.key)
	if err != nil {
		return protocol.SignedEnvelope{}, fmt.Errorf("sign envelope: %w", err)
	}

	id := blake3.Sum256([]byte(token))
	return protocol.SignedEnvelope{
		ID:        encode(id[:]),
		Owner:     s.owner,
		Signature: token,
		Payload:   payload,
	}, nil
}

// Verify checks env's signature against its owner key and payload and
// returns the signer's address.
func Verify(env protocol.SignedEnvelope) (string, error) {
	pub, err := base64.RawURLEncoding.DecodeString(env.Owner)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("decode owner: %w", ErrInvalidSignature)
	}

	var parsed claims
	_, err = jwt.ParseWithClaims(env.Signature, &parsed, func(*jwt.Token) (any, error) {
		return ed25519.PublicKey(pub), nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	address := AddressOf(pub)
	if parsed.Issuer != address {
		return "", fmt.Errorf("issuer mismatch: %w", ErrInvalidSignature)
	}

	digest := blake3.Sum256(env.Payload)
	if parsed.Digest != encode(digest[:]) {
		return "", fmt.Errorf("payload digest mismatch: %w", ErrInvalidSignature)
	}

	id := blake3.Sum256([]byte(env.Signature))
	if env.ID != encode(id[:]) {
		return "", fmt.Errorf("envelope id mismatch: %w", ErrInvalidSignature)
	}
	return address, nil
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
