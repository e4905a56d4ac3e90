package pkix

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

type PrivateKeyType string
type ECDSACurveType string

const (
	PrivateKeyTypeRSA     PrivateKeyType = "RSA"
	PrivateKeyTypeECDSA   PrivateKeyType = "ECDSA"
	PrivateKeyTypeEd25519 PrivateKeyType = "Ed25519"

	ECDSACurveTypeP256 ECDSACurveType = "P-256"
	ECDSACurveTypeP384 ECDSACurveType = "P-384"
	ECDSACurveTypeP521 ECDSACurveType = "P-521"
)

var ErrInvalidParameter = errors.New("invalid parameter")

type PrivateKeyOption struct {
	KeyType   PrivateKeyType `json:"key_type" yaml:"key_type"`
	BitLength int            `json:"bit_length,omitempty" yaml:"bit_length"` // RSA only.
	CurveType ECDSACurveType `json:"curve_type,omitempty" yaml:"curve_type"` // ECDSA only.
}

func CreatePrivateKey(option PrivateKeyOption) (any, error) {
	switch option.KeyType {
	case PrivateKeyTypeRSA:
		if option.BitLength < 2048 {
			return nil, fmt.Errorf("RSA bit length %d is too short: %w", option.BitLength, ErrInvalidParameter)
		}
		return rsa.GenerateKey(rand.Reader, option.BitLength)
	case PrivateKeyTypeECDSA:
		switch option.CurveType {
		case ECDSACurveTypeP256:
			return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		case ECDSACurveTypeP384:
			return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		case ECDSACurveTypeP521:
			return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
		default:
			return nil, fmt.Errorf("unknown curve type %q: %w", option.CurveType, ErrInvalidParameter)
		}
	case PrivateKeyTypeEd25519:
		_, privKey, err := ed25519.GenerateKey(rand.Reader)
		return privKey, err
	default:
		return nil, fmt.Errorf("unknown key type %q: %w", option.KeyType, ErrInvalidParameter)
	}
}

func ParsePrivateKey(key []byte) (any, error) {
	pemBlock, _ := pem.Decode(key)
	if pemBlock == nil {
		return nil, errors.New("invalid private key")
	}

	ecPrivateKey, ecErr := x509.ParseECPrivateKey(pemBlock.Bytes)
	if ecErr == nil {
		return ecPrivateKey, nil
	}

	privKey, pkcs8Err := x509.ParsePKCS8PrivateKey(pemBlock.Bytes)
	if pkcs8Err == nil {
		return privKey, nil
	}

	// Fallback to PKCS1
	rsaKey, pkcs1Err := x509.ParsePKCS1PrivateKey(pemBlock.Bytes)
	if pkcs1Err == nil {
		return rsaKey, nil
	}

	return nil, pkcs8Err
}

func MarshalPrivateKey(privKey any) (string, error) {
	raw, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return "", err
	}

	pemBlock := &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: raw,
	}
	return string(pem.EncodeToMemory(pemBlock)), nil
}

// IsPublicKeyOf reports whether pubKey is the public half of privKey.
func IsPublicKeyOf(privKey any, pubKey any) bool {
	switch pk := privKey.(type) {
	case *rsa.PrivateKey:
		return pk.PublicKey.Equal(pubKey)
	case *ecdsa.PrivateKey:
		return pk.PublicKey.Equal(pubKey)
	case ed25519.PrivateKey:
		pub, ok := pubKey.(ed25519.PublicKey)
		return ok && pub.Equal(pk.Public())
	}
	return false
}
