package signer

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/openc2pa/openc2pa/pkg/sign_server/keystore"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
)

// Mode selects the key custody model behind a Signer.
type Mode string

const (
	// ModeKeyPair signs in process with uploaded or server-issued PEM key
	// material.
	ModeKeyPair Mode = "keypair"
	// ModeKeyStore signs through a key held in the hardware backed key store.
	ModeKeyStore Mode = "keystore"
	// ModeCallback signs through an externally supplied capability, such as a
	// remote signing endpoint.
	ModeCallback Mode = "callback"
)

// Config binds an algorithm, a certificate chain and one signing capability.
type Config struct {
	Mode      Mode      `json:"mode" yaml:"mode"`
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`

	CertChainPEM          string `json:"cert_chain_pem" yaml:"cert_chain_pem"`
	TimestampAuthorityURL string `json:"tsa_url,omitempty" yaml:"tsa_url"`

	PrivateKeyPEM string `json:"private_key_pem,omitempty" yaml:"private_key_pem"` // ModeKeyPair

	KeyStore keystore.KeyStore `json:"-" yaml:"-"` // ModeKeyStore
	KeyAlias string            `json:"key_alias,omitempty" yaml:"key_alias"`

	Callback SignCallback `json:"-" yaml:"-"` // ModeCallback
}

func validateConfig(cfg Config) error {
	if err := validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Mode, validation.Required, validation.In(ModeKeyPair, ModeKeyStore, ModeCallback)),
		validation.Field(&cfg.Algorithm, validation.Required),
		validation.Field(&cfg.CertChainPEM, validation.Required),
		validation.Field(&cfg.PrivateKeyPEM, validation.Required.When(cfg.Mode == ModeKeyPair)),
		validation.Field(&cfg.KeyAlias, validation.Required.When(cfg.Mode == ModeKeyStore)),
	); err != nil {
		return fmt.Errorf("%s%w", err.Error(), model.ErrInvalidParameter)
	}
	return nil
}

// NewSigner constructs the signer variant selected by cfg.Mode. Keeping mode
// selection here keeps the pipeline free of custody branching.
func NewSigner(cfg Config) (Signer, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	// Normalize the configured algorithm name, accepting the JOSE spelling as
	// well.
	algorithm, err := ParseAlgorithm(string(cfg.Algorithm))
	if err != nil {
		return nil, err
	}
	cfg.Algorithm = algorithm

	switch cfg.Mode {
	case ModeKeyPair:
		return NewKeyPairSigner(cfg.Algorithm, cfg.PrivateKeyPEM, cfg.CertChainPEM, cfg.TimestampAuthorityURL)
	case ModeKeyStore:
		if cfg.KeyStore == nil {
			return nil, fmt.Errorf("key store is required for mode %q%w", cfg.Mode, model.ErrInvalidParameter)
		}
		key, err := cfg.KeyStore.Signer(cfg.KeyAlias)
		if err != nil {
			return nil, fmt.Errorf("%s%w", err.Error(), model.ErrInvalidParameter)
		}
		return NewCallbackSigner(cfg.Algorithm, cfg.CertChainPEM, cfg.TimestampAuthorityURL, KeyStoreCallback(key, cfg.Algorithm))
	case ModeCallback:
		return NewCallbackSigner(cfg.Algorithm, cfg.CertChainPEM, cfg.TimestampAuthorityURL, cfg.Callback)
	}

	return nil, fmt.Errorf("unknown signer mode %q%w", cfg.Mode, model.ErrInvalidParameter)
}
