// Package keystore provides the hardware backed key custody contract used by
// enrollment and callback signing. Keys never leave the store; callers only
// obtain a crypto.Signer bound to an alias.
package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/openc2pa/openc2pa/pkg/pkix"
)

type KeyStore interface {
	// Generate creates a key pair under alias. Generating over an existing
	// alias replaces the key.
	Generate(alias string, option pkix.PrivateKeyOption) error
	// Signer returns a crypto.Signer bound to the key under alias.
	Signer(alias string) (crypto.Signer, error)
	PublicKey(alias string) (crypto.PublicKey, error)
	Delete(alias string) error
}

// SoftwareKeyStore is a process local KeyStore. Deployments with real hardware
// custody supply their own implementation of the interface.
type SoftwareKeyStore struct {
	mtx  sync.RWMutex
	keys map[string]crypto.Signer
}

func NewSoftwareKeyStore() *SoftwareKeyStore {
	return &SoftwareKeyStore{
		keys: make(map[string]crypto.Signer),
	}
}

func (s *SoftwareKeyStore) Generate(alias string, option pkix.PrivateKeyOption) error {
	var signer crypto.Signer
	switch option.KeyType {
	case pkix.PrivateKeyTypeECDSA:
		curve := elliptic.P256()
		switch option.CurveType {
		case pkix.ECDSACurveTypeP256, "":
		case pkix.ECDSACurveTypeP384:
			curve = elliptic.P384()
		case pkix.ECDSACurveTypeP521:
			curve = elliptic.P521()
		default:
			return fmt.Errorf("unknown curve type %q", option.CurveType)
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return err
		}
		signer = key
	case pkix.PrivateKeyTypeEd25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		signer = key
	default:
		return fmt.Errorf("unsupported key type %q for key store", option.KeyType)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.keys[alias] = signer
	return nil
}

func (s *SoftwareKeyStore) Signer(alias string) (crypto.Signer, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	signer, ok := s.keys[alias]
	if !ok {
		return nil, fmt.Errorf("no key under alias %q", alias)
	}
	return signer, nil
}

func (s *SoftwareKeyStore) PublicKey(alias string) (crypto.PublicKey, error) {
	signer, err := s.Signer(alias)
	if err != nil {
		return nil, err
	}
	return signer.Public(), nil
}

func (s *SoftwareKeyStore) Delete(alias string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.keys[alias]; !ok {
		return fmt.Errorf("no key under alias %q", alias)
	}
	delete(s.keys, alias)
	return nil
}
