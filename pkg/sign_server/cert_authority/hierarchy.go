package cert_authority

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"time"

	eblpkix "github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
)

// Hierarchy holds the CA key material for the whole process lifetime. The
// keys are read-only after construction and safe for concurrent use.
type Hierarchy struct {
	RootKey          crypto.Signer
	RootCert         *x509.Certificate
	IntermediateKey  crypto.Signer
	IntermediateCert *x509.Certificate
}

// ChainPEM returns the trust chain (intermediate, root) in PEM.
func (h Hierarchy) ChainPEM() (string, error) {
	chain, err := eblpkix.MarshalCertificates(h.IntermediateCert, h.RootCert)
	if err != nil {
		return "", err
	}
	return string(chain), nil
}

type HierarchyOption struct {
	Country      []string `yaml:"country"`
	Organization []string `yaml:"organization"`
	CommonName   string   `yaml:"common_name"` // Root CN; the intermediate CN gets an " Intermediate" suffix.
}

// GenerateHierarchy creates a fresh root and intermediate CA pair with P-256
// keys, with validity taken from policy.
func GenerateHierarchy(option HierarchyOption, policy ValidityPolicy, ts int64) (Hierarchy, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Hierarchy{}, fmt.Errorf("generate root key: %w", err)
	}
	intermediateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Hierarchy{}, fmt.Errorf("generate intermediate key: %w", err)
	}

	notBefore := time.Unix(ts, 0)

	rootSerial, err := newSerialNumber()
	if err != nil {
		return Hierarchy{}, err
	}
	rootTemplate := x509.Certificate{
		SerialNumber: rootSerial,
		Subject: pkix.Name{
			Country:      option.Country,
			Organization: option.Organization,
			CommonName:   option.CommonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(policy.Validity(model.RootCert)),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}
	rootRaw, err := x509.CreateCertificate(rand.Reader, &rootTemplate, &rootTemplate, rootKey.Public(), rootKey)
	if err != nil {
		return Hierarchy{}, fmt.Errorf("create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(rootRaw)
	if err != nil {
		return Hierarchy{}, err
	}

	intermediateSerial, err := newSerialNumber()
	if err != nil {
		return Hierarchy{}, err
	}
	intermediateTemplate := x509.Certificate{
		SerialNumber: intermediateSerial,
		Subject: pkix.Name{
			Country:      option.Country,
			Organization: option.Organization,
			CommonName:   option.CommonName + " Intermediate",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(policy.Validity(model.IntermediateCert)),
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}
	intermediateRaw, err := x509.CreateCertificate(rand.Reader, &intermediateTemplate, rootCert, intermediateKey.Public(), rootKey)
	if err != nil {
		return Hierarchy{}, fmt.Errorf("create intermediate certificate: %w", err)
	}
	intermediateCert, err := x509.ParseCertificate(intermediateRaw)
	if err != nil {
		return Hierarchy{}, err
	}

	return Hierarchy{
		RootKey:          rootKey,
		RootCert:         rootCert,
		IntermediateKey:  intermediateKey,
		IntermediateCert: intermediateCert,
	}, nil
}

// LoadHierarchy reads a previously generated hierarchy from PEM material.
func LoadHierarchy(rootCertPEM, rootKeyPEM, intermediateCertPEM, intermediateKeyPEM string) (Hierarchy, error) {
	rootCerts, err := eblpkix.ParseCertificate([]byte(rootCertPEM))
	if err != nil {
		return Hierarchy{}, fmt.Errorf("parse root certificate: %w", err)
	}
	intermediateCerts, err := eblpkix.ParseCertificate([]byte(intermediateCertPEM))
	if err != nil {
		return Hierarchy{}, fmt.Errorf("parse intermediate certificate: %w", err)
	}

	rootKey, err := eblpkix.ParsePrivateKey([]byte(rootKeyPEM))
	if err != nil {
		return Hierarchy{}, fmt.Errorf("parse root key: %w", err)
	}
	intermediateKey, err := eblpkix.ParsePrivateKey([]byte(intermediateKeyPEM))
	if err != nil {
		return Hierarchy{}, fmt.Errorf("parse intermediate key: %w", err)
	}

	h := Hierarchy{
		RootKey:          rootKey.(crypto.Signer),
		RootCert:         rootCerts[0],
		IntermediateKey:  intermediateKey.(crypto.Signer),
		IntermediateCert: intermediateCerts[0],
	}
	if !eblpkix.IsPublicKeyOf(rootKey, h.RootCert.PublicKey) {
		return Hierarchy{}, fmt.Errorf("root key does not match the root certificate%w", model.ErrInvalidParameter)
	}
	if !eblpkix.IsPublicKeyOf(intermediateKey, h.IntermediateCert.PublicKey) {
		return Hierarchy{}, fmt.Errorf("intermediate key does not match the intermediate certificate%w", model.ErrInvalidParameter)
	}
	return h, nil
}
