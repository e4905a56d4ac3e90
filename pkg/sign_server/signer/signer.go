// Package signer provides a uniform signing capability over heterogeneous key
// custody models: in-process key material, a hardware backed key store, and a
// remote signing service.
package signer

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/sigcodec"
)

// Signer is the common signing capability handed to the manifest pipeline.
// Sign blocks until a signature or an error is produced; there is no
// cancellation guarantee once the underlying signing call has started.
type Signer interface {
	Sign(ctx context.Context, data []byte) ([]byte, error)
	Algorithm() Algorithm
	CertChainPEM() string
	TimestampAuthorityURL() string
}

// SignCallback is the raw sign step of a CallbackSigner. It receives the bytes
// to sign and returns the raw fixed-width signature.
type SignCallback func(ctx context.Context, data []byte) ([]byte, error)

// KeyPairSigner signs in process with PEM private key material.
type KeyPairSigner struct {
	algorithm Algorithm
	chainPEM  string
	tsaURL    string
	key       crypto.Signer
}

func NewKeyPairSigner(algorithm Algorithm, privateKeyPEM, chainPEM, tsaURL string) (*KeyPairSigner, error) {
	privKey, err := pkix.ParsePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %s%w", err.Error(), model.ErrInvalidParameter)
	}

	switch algorithm {
	case AlgorithmES256:
		if _, ok := privKey.(*ecdsa.PrivateKey); !ok {
			return nil, fmt.Errorf("private key is not ECDSA%w", model.ErrInvalidParameter)
		}
	case AlgorithmEd25519:
		if _, ok := privKey.(ed25519.PrivateKey); !ok {
			return nil, fmt.Errorf("private key is not Ed25519%w", model.ErrInvalidParameter)
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm %q%w", algorithm, model.ErrInvalidParameter)
	}

	return &KeyPairSigner{
		algorithm: algorithm,
		chainPEM:  chainPEM,
		tsaURL:    tsaURL,
		key:       privKey.(crypto.Signer),
	}, nil
}

func (s *KeyPairSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	var signature []byte
	var err error

	switch s.algorithm {
	case AlgorithmES256:
		digest := sha256.Sum256(data)
		var derSig []byte
		derSig, err = s.key.Sign(rand.Reader, digest[:], crypto.SHA256)
		if err == nil {
			// Downstream embedding requires the raw fixed-width form, not DER.
			signature, err = sigcodec.DERToRaw(derSig, s.algorithm.CoordinateSize())
		}
	case AlgorithmEd25519:
		signature, err = s.key.Sign(rand.Reader, data, crypto.Hash(0))
	}
	if err != nil {
		return nil, fmt.Errorf("sign with %s key pair: %s%w", s.algorithm, err.Error(), model.ErrSigningFailed)
	}

	return checkSignatureSize(signature, s.algorithm)
}

func (s *KeyPairSigner) Algorithm() Algorithm          { return s.algorithm }
func (s *KeyPairSigner) CertChainPEM() string          { return s.chainPEM }
func (s *KeyPairSigner) TimestampAuthorityURL() string { return s.tsaURL }

// CallbackSigner delegates the raw sign step to an external capability, for
// example a hardware key store or a remote signing endpoint. The callback is
// synchronous from the caller's perspective.
type CallbackSigner struct {
	algorithm Algorithm
	chainPEM  string
	tsaURL    string
	callback  SignCallback
}

func NewCallbackSigner(algorithm Algorithm, chainPEM, tsaURL string, callback SignCallback) (*CallbackSigner, error) {
	if callback == nil {
		return nil, fmt.Errorf("sign callback is required%w", model.ErrInvalidParameter)
	}
	if algorithm.SignatureSize() == 0 {
		return nil, fmt.Errorf("unsupported algorithm %q%w", algorithm, model.ErrInvalidParameter)
	}

	return &CallbackSigner{
		algorithm: algorithm,
		chainPEM:  chainPEM,
		tsaURL:    tsaURL,
		callback:  callback,
	}, nil
}

func (s *CallbackSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	signature, err := s.callback(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("sign callback: %s%w", err.Error(), model.ErrSigningFailed)
	}
	return checkSignatureSize(signature, s.algorithm)
}

func (s *CallbackSigner) Algorithm() Algorithm          { return s.algorithm }
func (s *CallbackSigner) CertChainPEM() string          { return s.chainPEM }
func (s *CallbackSigner) TimestampAuthorityURL() string { return s.tsaURL }

// KeyStoreCallback adapts a crypto.Signer held in a key store into a
// SignCallback producing raw fixed-width signatures.
func KeyStoreCallback(key crypto.Signer, algorithm Algorithm) SignCallback {
	return func(ctx context.Context, data []byte) ([]byte, error) {
		switch algorithm {
		case AlgorithmES256:
			digest := sha256.Sum256(data)
			derSig, err := key.Sign(rand.Reader, digest[:], crypto.SHA256)
			if err != nil {
				return nil, err
			}
			return sigcodec.DERToRaw(derSig, algorithm.CoordinateSize())
		case AlgorithmEd25519:
			return key.Sign(rand.Reader, data, crypto.Hash(0))
		}
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

func checkSignatureSize(signature []byte, algorithm Algorithm) ([]byte, error) {
	if len(signature) != algorithm.SignatureSize() {
		return nil, fmt.Errorf(
			"signature length %d does not match the declared %d bytes of %s%w",
			len(signature), algorithm.SignatureSize(), algorithm, model.ErrSigningFailed,
		)
	}
	return signature, nil
}
