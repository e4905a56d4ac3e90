package model

type CertRole string

const (
	RootCert         CertRole = "root"
	IntermediateCert CertRole = "intermediate"
	EndEntityCert    CertRole = "end_entity"
	TemporaryCert    CertRole = "temporary"
)

// IssuedCertificate is the immutable record of a single issuance. The
// certificate chain is PEM encoded, leaf first, then intermediate, then root.
type IssuedCertificate struct {
	ID           string   `json:"id"`            // Unique ID of the issued certificate.
	Role         CertRole `json:"role"`          // Role of the leaf certificate.
	SerialNumber string   `json:"serial_number"` // Decimal serial number of the leaf certificate.

	NotBefore int64 `json:"not_before"` // Unix Time (in second) when the certificate becomes valid.
	NotAfter  int64 `json:"not_after"`  // Unix Time (in second) when the certificate becomes invalid.

	IssuedAt  int64  `json:"issued_at"` // Unix Time (in second) when the certificate was issued.
	IssuedFor string `json:"issued_for,omitempty"`

	CertificateChain string `json:"certificate_chain"`     // PEM encoded chain, leaf first.
	PrivateKey       string `json:"private_key,omitempty"` // PEM encoded private key. Only set for temporary certificates.
	CertFingerPrint  string `json:"cert_fingerprint"`      // Format is [HASH_ALGORITHM]:[FINGERPRINT_HEX_ENCODED].
}
