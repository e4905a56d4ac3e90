package pkix_test

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"testing"
	"time"

	"github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cert_authority"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CertVerifyTestSuite struct {
	suite.Suite

	ts        int64
	hierarchy cert_authority.Hierarchy
	leafCert  *x509.Certificate
}

func TestCertVerifyTestSuite(t *testing.T) {
	suite.Run(t, new(CertVerifyTestSuite))
}

func (s *CertVerifyTestSuite) SetupSuite() {
	s.ts = time.Now().Unix()

	hierarchy, err := cert_authority.GenerateHierarchy(
		cert_authority.HierarchyOption{
			Country:      []string{"US"},
			Organization: []string{"OpenC2PA"},
			CommonName:   "OpenC2PA Test Root CA",
		},
		cert_authority.DefaultValidityPolicy(),
		s.ts,
	)
	s.Require().NoError(err)
	s.hierarchy = hierarchy

	// Issue a leaf through the CA with a throwaway storage-free path: sign a
	// CSR template directly with the intermediate.
	leafKey, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	s.Require().NoError(err)
	s.leafCert = s.issueLeaf(leafKey.(*ecdsa.PrivateKey), time.Unix(s.ts, 0).Add(365*24*time.Hour))
}

func (s *CertVerifyTestSuite) issueLeaf(key *ecdsa.PrivateKey, notAfter time.Time) *x509.Certificate {
	template := x509.Certificate{
		SerialNumber:          s.hierarchy.IntermediateCert.SerialNumber,
		Subject:               s.hierarchy.IntermediateCert.Subject,
		NotBefore:             time.Unix(s.ts, 0),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	template.Subject.CommonName = "Leaf Device"

	raw, err := x509.CreateCertificate(rand.Reader, &template, s.hierarchy.IntermediateCert, key.Public(), s.hierarchy.IntermediateKey)
	s.Require().NoError(err)
	cert, err := x509.ParseCertificate(raw)
	s.Require().NoError(err)
	return cert
}

func (s *CertVerifyTestSuite) TestVerify() {
	certs := []*x509.Certificate{s.leafCert, s.hierarchy.IntermediateCert}
	roots := []*x509.Certificate{s.hierarchy.RootCert}

	s.Assert().NoError(pkix.Verify(certs, roots, s.ts+3600))

	// Before the validity window.
	s.Assert().Error(pkix.Verify(certs, roots, s.ts-3600))

	// After the validity window.
	s.Assert().Error(pkix.Verify(certs, roots, time.Unix(s.ts, 0).Add(366*24*time.Hour).Unix()))

	// Without the intermediate the chain cannot be built.
	s.Assert().Error(pkix.Verify([]*x509.Certificate{s.leafCert}, roots, s.ts+3600))

	// Degenerate inputs.
	s.Assert().Error(pkix.Verify(nil, roots, s.ts))
	s.Assert().Error(pkix.Verify(certs, nil, s.ts))
}

func (s *CertVerifyTestSuite) TestMarshalAndParseCertificates() {
	pemBytes, err := pkix.MarshalCertificates(s.leafCert, s.hierarchy.IntermediateCert, s.hierarchy.RootCert)
	s.Require().NoError(err)

	certs, err := pkix.ParseCertificate(pemBytes)
	s.Require().NoError(err)
	s.Require().Len(certs, 3)
	s.Assert().Equal(s.leafCert.Raw, certs[0].Raw)
	s.Assert().Equal(s.hierarchy.RootCert.Raw, certs[2].Raw)

	_, err = pkix.MarshalCertificates()
	s.Assert().Error(err)
	_, err = pkix.ParseCertificate([]byte("not a pem"))
	s.Assert().Error(err)
}

func TestCertificateSigningRequestRoundTrip(t *testing.T) {
	privKey, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	require.NoError(t, err)

	csrPEM, err := pkix.CreateCertificateSigningRequest(privKey, []string{"US"}, []string{"Signer Org"}, []string{"Imaging"}, "Camera Model X")
	require.NoError(t, err)

	csr, err := pkix.ParseCertificateRequest(csrPEM)
	require.NoError(t, err)
	assert.Equal(t, "Camera Model X", csr.Subject.CommonName)
	assert.Equal(t, []string{"Signer Org"}, csr.Subject.Organization)
	assert.True(t, pkix.IsPublicKeyOf(privKey, csr.PublicKey))
}

func TestParseCertificateRequestRejectsWrongBlockType(t *testing.T) {
	_, err := pkix.ParseCertificateRequest([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"))
	assert.Error(t, err)

	_, err = pkix.ParseCertificateRequest([]byte("not a pem"))
	assert.Error(t, err)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	options := []pkix.PrivateKeyOption{
		{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256},
		{KeyType: pkix.PrivateKeyTypeEd25519},
		{KeyType: pkix.PrivateKeyTypeRSA, BitLength: 2048},
	}
	for _, option := range options {
		privKey, err := pkix.CreatePrivateKey(option)
		require.NoError(t, err, "%+v", option)

		pemStr, err := pkix.MarshalPrivateKey(privKey)
		require.NoError(t, err)

		parsed, err := pkix.ParsePrivateKey([]byte(pemStr))
		require.NoError(t, err)
		assert.IsType(t, privKey, parsed)
	}

	_, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeRSA, BitLength: 1024})
	assert.ErrorIs(t, err, pkix.ErrInvalidParameter)
	_, err = pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: "DSA"})
	assert.ErrorIs(t, err, pkix.ErrInvalidParameter)
}

func TestGetSubjectKeyIDFromCertificate(t *testing.T) {
	hierarchy, err := cert_authority.GenerateHierarchy(
		cert_authority.HierarchyOption{CommonName: "Key ID Test CA"},
		cert_authority.DefaultValidityPolicy(),
		time.Now().Unix(),
	)
	require.NoError(t, err)

	keyID := pkix.GetSubjectKeyIDFromCertificate(hierarchy.RootCert)
	assert.NotEmpty(t, keyID)
}
