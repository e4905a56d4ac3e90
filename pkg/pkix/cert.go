package pkix

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// Verify verifies the certificate chain of trust at time ts.
//
// The first certificate in the chain is the end-entity certificate.
// The rest of the certificates are intermediate certificates.
// rootCerts are the trust anchors.
func Verify(certs []*x509.Certificate, rootCerts []*x509.Certificate, ts int64) error {
	if len(certs) == 0 {
		return errors.New("no certificate provided")
	}
	if len(rootCerts) == 0 {
		return errors.New("no root certificate provided")
	}

	rootPool := x509.NewCertPool()
	for _, rootCert := range rootCerts {
		rootPool.AddCert(rootCert)
	}
	intermediatePool := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediatePool.AddCert(cert)
	}

	options := x509.VerifyOptions{
		Roots:         rootPool,
		Intermediates: intermediatePool,
		CurrentTime:   time.Unix(ts, 0),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	if _, err := certs[0].Verify(options); err != nil {
		return err
	}
	return nil
}

func ParseCertificate(certRaw []byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, 4)
	for {
		pemBlock, remains := pem.Decode(certRaw)
		if pemBlock == nil {
			return nil, errors.New("invalid certificate")
		}

		cert, err := x509.ParseCertificate(pemBlock.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)

		if len(remains) == 0 {
			break
		}
		certRaw = remains
	}

	return certs, nil
}

func ParseCertificateRequest(certRequest []byte) (*x509.CertificateRequest, error) {
	pemBlock, _ := pem.Decode(certRequest)
	if pemBlock == nil {
		return nil, errors.New("invalid certificate request")
	}
	if pemBlock.Type != "CERTIFICATE REQUEST" && pemBlock.Type != "NEW CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("unexpected PEM block type %q", pemBlock.Type)
	}

	csr, err := x509.ParseCertificateRequest(pemBlock.Bytes)
	if err != nil {
		return nil, err
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, err
	}
	return csr, nil
}

func MarshalCertificates(certs ...*x509.Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("no certificate provided")
	}

	result := make([]byte, 0, 4096)
	for _, cert := range certs {
		pemBlock := &pem.Block{
			Type:  "CERTIFICATE",
			Bytes: cert.Raw,
		}
		result = append(result, pem.EncodeToMemory(pemBlock)...)
	}
	return result, nil
}

// CreateCertificateSigningRequest creates a PEM encoded CSR signed by privKey.
func CreateCertificateSigningRequest(privKey any, country, org, unit []string, commonName string) ([]byte, error) {
	template := x509.CertificateRequest{
		Subject: pkix.Name{
			Country:            country,
			Organization:       org,
			OrganizationalUnit: unit,
			CommonName:         commonName,
		},
	}

	csrRaw, err := x509.CreateCertificateRequest(rand.Reader, &template, privKey)
	if err != nil {
		return nil, err
	}

	pemBlock := &pem.Block{
		Type:  "CERTIFICATE REQUEST",
		Bytes: csrRaw,
	}
	return pem.EncodeToMemory(pemBlock), nil
}

// GetSubjectKeyIDFromCertificate returns the hex encoded subject key ID of the
// certificate. If the certificate carries no SubjectKeyId extension, the SHA-1
// of the raw subject public key info is used instead.
func GetSubjectKeyIDFromCertificate(cert *x509.Certificate) string {
	if len(cert.SubjectKeyId) > 0 {
		return hex.EncodeToString(cert.SubjectKeyId)
	}
	hashValue := sha1.Sum(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(hashValue[:])
}
