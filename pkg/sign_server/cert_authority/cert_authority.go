// Package cert_authority owns the root/intermediate CA hierarchy and issues
// end-entity and temporary certificates for manifest signing.
package cert_authority

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	eblpkix "github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	"github.com/openc2pa/openc2pa/pkg/util"
)

type CertAuthority interface {
	// SignCSR issues an end-entity certificate for a PEM encoded CSR, signed
	// by the intermediate CA. The returned chain is leaf first.
	SignCSR(ctx context.Context, ts int64, req SignCSRRequest) (model.IssuedCertificate, error)

	// IssueTemporaryCertificate issues a short-lived certificate together with
	// a server generated key pair, used to bootstrap ephemeral signers without
	// a full enrollment round-trip.
	IssueTemporaryCertificate(ctx context.Context, ts int64) (model.IssuedCertificate, error)

	ListIssuedCertificates(ctx context.Context, req storage.ListIssuedCertificatesRequest) (storage.ListIssuedCertificatesResponse, error)

	// TrustChainPEM returns the intermediate and root certificates in PEM.
	TrustChainPEM() string
}

// ValidityPolicy maps a certificate role to its issuance validity window.
type ValidityPolicy map[model.CertRole]time.Duration

func DefaultValidityPolicy() ValidityPolicy {
	return ValidityPolicy{
		model.RootCert:         3650 * 24 * time.Hour,
		model.IntermediateCert: 1825 * 24 * time.Hour,
		model.EndEntityCert:    365 * 24 * time.Hour,
		model.TemporaryCert:    24 * time.Hour,
	}
}

func (p ValidityPolicy) Validity(role model.CertRole) time.Duration {
	if d, ok := p[role]; ok {
		return d
	}
	return DefaultValidityPolicy()[role]
}

// CertMetadata carries subject overrides for an issuance request.
type CertMetadata struct {
	CommonName         string   `json:"common_name,omitempty"`
	Country            []string `json:"country,omitempty"`
	Organization       []string `json:"organization,omitempty"`
	OrganizationalUnit []string `json:"organizational_unit,omitempty"`
}

type SignCSRRequest struct {
	Requester string        `json:"requester"` // Who makes the request.
	CSR       string        `json:"csr"`       // PEM encoded certificate signing request.
	Metadata  *CertMetadata `json:"metadata,omitempty"`
}

type _CertAuthority struct {
	hierarchy   Hierarchy
	policy      ValidityPolicy
	certStorage storage.CertStorage
	trustChain  string
}

func NewCertAuthority(hierarchy Hierarchy, policy ValidityPolicy, certStorage storage.CertStorage) (*_CertAuthority, error) {
	if hierarchy.RootKey == nil || hierarchy.RootCert == nil ||
		hierarchy.IntermediateKey == nil || hierarchy.IntermediateCert == nil {
		return nil, fmt.Errorf("CA hierarchy is incomplete%w", model.ErrServiceUnavailable)
	}
	if policy == nil {
		policy = DefaultValidityPolicy()
	}

	trustChain, err := hierarchy.ChainPEM()
	if err != nil {
		return nil, err
	}

	return &_CertAuthority{
		hierarchy:   hierarchy,
		policy:      policy,
		certStorage: certStorage,
		trustChain:  trustChain,
	}, nil
}

func (ca *_CertAuthority) TrustChainPEM() string {
	return ca.trustChain
}

func (ca *_CertAuthority) SignCSR(ctx context.Context, ts int64, req SignCSRRequest) (model.IssuedCertificate, error) {
	if err := ValidateSignCSRRequest(req); err != nil {
		return model.IssuedCertificate{}, err
	}

	if !strings.Contains(req.CSR, "BEGIN CERTIFICATE REQUEST") &&
		!strings.Contains(req.CSR, "BEGIN NEW CERTIFICATE REQUEST") {
		return model.IssuedCertificate{}, fmt.Errorf("no certificate request block in the PEM%w", model.ErrCertificateRequestInvalid)
	}
	csr, err := eblpkix.ParseCertificateRequest([]byte(req.CSR))
	if err != nil {
		return model.IssuedCertificate{}, fmt.Errorf("%s%w", err.Error(), model.ErrCertificateRequestInvalid)
	}

	subject := csr.Subject
	if req.Metadata != nil {
		applyMetadata(&subject, *req.Metadata)
	}

	cert, err := ca.issue(ts, model.EndEntityCert, subject, csr.PublicKey, req.Requester)
	if err != nil {
		return model.IssuedCertificate{}, err
	}

	if err := ca.store(ctx, cert); err != nil {
		return model.IssuedCertificate{}, err
	}
	return cert, nil
}

func (ca *_CertAuthority) IssueTemporaryCertificate(ctx context.Context, ts int64) (model.IssuedCertificate, error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return model.IssuedCertificate{}, fmt.Errorf("generate temporary key: %w", err)
	}

	subject := pkix.Name{
		Organization: ca.hierarchy.IntermediateCert.Subject.Organization,
		CommonName:   "Temporary Signer",
	}
	cert, err := ca.issue(ts, model.TemporaryCert, subject, privKey.Public(), "")
	if err != nil {
		return model.IssuedCertificate{}, err
	}

	privKeyPEM, err := eblpkix.MarshalPrivateKey(privKey)
	if err != nil {
		return model.IssuedCertificate{}, err
	}
	cert.PrivateKey = privKeyPEM

	if err := ca.store(ctx, cert); err != nil {
		return model.IssuedCertificate{}, err
	}
	return cert, nil
}

func (ca *_CertAuthority) ListIssuedCertificates(ctx context.Context, req storage.ListIssuedCertificatesRequest) (storage.ListIssuedCertificatesResponse, error) {
	if err := ValidateListIssuedCertificatesRequest(req); err != nil {
		return storage.ListIssuedCertificatesResponse{}, err
	}

	tx, ctx, err := ca.certStorage.CreateTx(ctx)
	if err != nil {
		return storage.ListIssuedCertificatesResponse{}, err
	}
	defer tx.Rollback(ctx)

	return ca.certStorage.ListIssuedCertificates(ctx, tx, req)
}

// issue builds and signs a leaf certificate with the intermediate key. The
// validity window is the role policy clamped to the issuer's remaining
// validity.
func (ca *_CertAuthority) issue(ts int64, role model.CertRole, subject pkix.Name, pubKey any, issuedFor string) (model.IssuedCertificate, error) {
	if ca.hierarchy.IntermediateKey == nil || ca.hierarchy.IntermediateCert == nil {
		return model.IssuedCertificate{}, fmt.Errorf("CA key material is missing%w", model.ErrServiceUnavailable)
	}

	serialNumber, err := newSerialNumber()
	if err != nil {
		return model.IssuedCertificate{}, err
	}

	notBefore := time.Unix(ts, 0)
	notAfter := notBefore.Add(ca.policy.Validity(role))
	if notAfter.After(ca.hierarchy.IntermediateCert.NotAfter) {
		notAfter = ca.hierarchy.IntermediateCert.NotAfter
	}

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
	}

	rawCert, err := x509.CreateCertificate(rand.Reader, &template, ca.hierarchy.IntermediateCert, pubKey, ca.hierarchy.IntermediateKey)
	if err != nil {
		return model.IssuedCertificate{}, fmt.Errorf("fail to CreateCertificate: %w", err)
	}
	leafCert, err := x509.ParseCertificate(rawCert)
	if err != nil {
		return model.IssuedCertificate{}, fmt.Errorf("fail to ParseCertificate: %w", err)
	}

	chainPEM, err := eblpkix.MarshalCertificates(leafCert, ca.hierarchy.IntermediateCert, ca.hierarchy.RootCert)
	if err != nil {
		return model.IssuedCertificate{}, fmt.Errorf("fail to MarshalCertificates: %w", err)
	}

	if issuedFor == "" {
		issuedFor = subject.CommonName
	}
	return model.IssuedCertificate{
		ID:               util.NewUUID(),
		Role:             role,
		SerialNumber:     leafCert.SerialNumber.String(),
		NotBefore:        leafCert.NotBefore.Unix(),
		NotAfter:         leafCert.NotAfter.Unix(),
		IssuedAt:         ts,
		IssuedFor:        issuedFor,
		CertificateChain: string(chainPEM),
		CertFingerPrint:  fmt.Sprintf("sha1:%x", sha1.Sum(leafCert.Raw)),
	}, nil
}

func (ca *_CertAuthority) store(ctx context.Context, cert model.IssuedCertificate) error {
	tx, ctx, err := ca.certStorage.CreateTx(ctx, storage.TxOptionWithWrite(true), storage.TxOptionWithIsolationLevel(sql.LevelSerializable))
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := ca.certStorage.AddIssuedCertificate(ctx, tx, cert); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func applyMetadata(subject *pkix.Name, metadata CertMetadata) {
	if metadata.CommonName != "" {
		subject.CommonName = metadata.CommonName
	}
	if len(metadata.Country) > 0 {
		subject.Country = metadata.Country
	}
	if len(metadata.Organization) > 0 {
		subject.Organization = metadata.Organization
	}
	if len(metadata.OrganizationalUnit) > 0 {
		subject.OrganizationalUnit = metadata.OrganizationalUnit
	}
}

var maxSerialNumber = new(big.Int).Lsh(big.NewInt(1), 63)

// newSerialNumber draws a CSPRNG serial. crypto/rand is safe for concurrent
// use, which keeps issuance lock free.
func newSerialNumber() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, maxSerialNumber)
	if err != nil {
		return nil, fmt.Errorf("allocate serial number: %w", err)
	}
	return serial, nil
}
