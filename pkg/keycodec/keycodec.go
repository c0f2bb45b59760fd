// Package keycodec converts Ed25519 key material between the encodings used
// by Open Badges issuers: PEM (SPKI for public keys, PKCS#8 for private keys)
// and multibase strings. All downstream code operates on the canonical Key
// type produced here.
package keycodec

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/mr-tron/base58"
)

// Common errors returned by this package.
var (
	ErrUnsupportedFormat = errors.New("unsupported key format")
	ErrNotEd25519        = errors.New("key is not an Ed25519 key")
	ErrInvalidPEM        = errors.New("invalid PEM block")
	ErrInvalidMultibase  = errors.New("invalid multibase key string")
	ErrNoPrivateKey      = errors.New("key material has no private key")
)

// Encoding identifies the source encoding a key was decoded from.
type Encoding string

const (
	// EncodingPEM is PEM-armored SPKI (public) or PKCS#8 (private).
	EncodingPEM Encoding = "pem"

	// EncodingMultibase is a multibase string. Two forms are accepted:
	// 'z' + base64url(DER SPKI bytes), and the standard base58btc
	// multicodec form used by did:key (prefix 0xed 0x01).
	EncodingMultibase Encoding = "multibase"
)

// Ed25519MulticodecPrefix is the two-byte multicodec prefix for Ed25519
// public keys in base58btc multibase strings.
var ed25519MulticodecPrefix = []byte{0xed, 0x01}

// Key is the canonical representation of Ed25519 key material along with
// its domain association and the encoding it was decoded from.
type Key struct {
	// Public is the Ed25519 public key, always set.
	Public ed25519.PublicKey

	// Private is the Ed25519 private key, set only for signing keys.
	Private ed25519.PrivateKey

	// Domain is the issuer domain this key belongs to, if known.
	Domain string

	// Encoding is the encoding the key material arrived in.
	Encoding Encoding
}

// PublicPEM returns the public half of the key as PEM SPKI.
func (k *Key) PublicPEM() (string, error) {
	return EncodePublicPEM(k.Public)
}

// Signer reports whether the key can be used for signing.
func (k *Key) Signer() bool {
	return k.Private != nil
}

// DecodePublicPEM parses a PEM SPKI block into an Ed25519 public key.
func DecodePublicPEM(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, ErrInvalidPEM
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SPKI public key: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return edPub, nil
}

// DecodePrivatePEM parses a PEM PKCS#8 block into an Ed25519 private key.
func DecodePrivatePEM(pemStr string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, ErrInvalidPEM
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
	}
	edPriv, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return edPriv, nil
}

// DecodePEM parses either a public SPKI or a private PKCS#8 PEM block and
// returns a Key. Private keys also populate the derived public half.
func DecodePEM(pemStr string) (*Key, error) {
	if strings.Contains(pemStr, "PRIVATE KEY") {
		priv, err := DecodePrivatePEM(pemStr)
		if err != nil {
			return nil, err
		}
		return &Key{
			Public:   priv.Public().(ed25519.PublicKey),
			Private:  priv,
			Encoding: EncodingPEM,
		}, nil
	}
	pub, err := DecodePublicPEM(pemStr)
	if err != nil {
		return nil, err
	}
	return &Key{Public: pub, Encoding: EncodingPEM}, nil
}

// EncodePublicPEM encodes an Ed25519 public key as PEM SPKI.
func EncodePublicPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SPKI public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// EncodePrivatePEM encodes an Ed25519 private key as PEM PKCS#8.
func EncodePrivatePEM(priv ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal PKCS#8 private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// DecodeMultibase parses a multibase public key string. The string must start
// with the 'z' prefix. The payload is tried as base64url DER SPKI bytes
// first, then as base58btc multicodec (did:key style, 0xed01 prefix).
func DecodeMultibase(s string) (ed25519.PublicKey, error) {
	if len(s) < 2 || s[0] != 'z' {
		return nil, fmt.Errorf("%w: missing 'z' prefix", ErrInvalidMultibase)
	}
	payload := s[1:]

	if der, err := decodeBase64URL(payload); err == nil {
		if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
			if edPub, ok := pub.(ed25519.PublicKey); ok {
				return edPub, nil
			}
			return nil, ErrNotEd25519
		}
	}

	raw, err := base58.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64url SPKI or base58btc", ErrInvalidMultibase)
	}
	if len(raw) != len(ed25519MulticodecPrefix)+ed25519.PublicKeySize ||
		raw[0] != ed25519MulticodecPrefix[0] || raw[1] != ed25519MulticodecPrefix[1] {
		return nil, fmt.Errorf("%w: unexpected multicodec payload", ErrInvalidMultibase)
	}
	return ed25519.PublicKey(raw[2:]), nil
}

// EncodeMultibase encodes a public key as 'z' + base64url(DER SPKI bytes).
func EncodeMultibase(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SPKI public key: %w", err)
	}
	return "z" + base64.RawURLEncoding.EncodeToString(der), nil
}

// MultibaseToPEM converts a multibase public key string to PEM SPKI.
func MultibaseToPEM(s string) (string, error) {
	pub, err := DecodeMultibase(s)
	if err != nil {
		return "", err
	}
	return EncodePublicPEM(pub)
}

// PublicJWK wraps a public key as a JSON Web Key for interop with tooling
// that speaks JWK rather than PEM.
func PublicJWK(pub ed25519.PublicKey, kid string) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       pub,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
}

// decodeBase64URL accepts both raw and padded base64url payloads.
func decodeBase64URL(s string) ([]byte, error) {
	if strings.Contains(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
