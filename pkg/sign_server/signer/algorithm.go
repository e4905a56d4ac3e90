package signer

import (
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
)

// Algorithm names follow the manifest embedding engine convention
// (lower case, COSE style).
type Algorithm string

const (
	AlgorithmES256   Algorithm = "es256"   // ECDSA P-256 / SHA-256
	AlgorithmEd25519 Algorithm = "ed25519" // Ed25519
)

// ParseAlgorithm resolves a name given in either the engine convention or the
// JOSE spelling, e.g. both "ed25519" and "EdDSA" name AlgorithmEd25519.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, algorithm := range []Algorithm{AlgorithmES256, AlgorithmEd25519} {
		if strings.EqualFold(name, string(algorithm)) || strings.EqualFold(name, algorithm.JWA().String()) {
			return algorithm, nil
		}
	}
	return "", fmt.Errorf("unknown signing algorithm %q%w", name, model.ErrInvalidParameter)
}

// SignatureSize returns the fixed raw signature length in bytes.
func (a Algorithm) SignatureSize() int {
	switch a {
	case AlgorithmES256, AlgorithmEd25519:
		return 64
	}
	return 0
}

// CoordinateSize returns the curve coordinate length in bytes for ECDSA
// algorithms, or 0 for algorithms without DER conversion.
func (a Algorithm) CoordinateSize() int {
	if a == AlgorithmES256 {
		return 32
	}
	return 0
}

// IsECDSA reports whether the native signature output is ASN.1 DER and needs
// conversion to the raw form.
func (a Algorithm) IsECDSA() bool {
	return a == AlgorithmES256
}

// JWA returns the JOSE name of the algorithm.
func (a Algorithm) JWA() jwa.SignatureAlgorithm {
	switch a {
	case AlgorithmES256:
		return jwa.ES256
	case AlgorithmEd25519:
		return jwa.EdDSA
	}
	return ""
}
