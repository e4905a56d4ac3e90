// Package sigcodec converts ECDSA signatures between ASN.1 DER encoding and
// the fixed-width raw r||s concatenation required by manifest embedding.
package sigcodec

import (
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
)

type ecdsaSignature struct {
	R, S *big.Int
}

// DERToRaw converts a DER SEQUENCE of two INTEGERs (r, s) into the raw
// concatenation r||s with each component left zero padded to coordinateSize.
func DERToRaw(der []byte, coordinateSize int) ([]byte, error) {
	if coordinateSize <= 0 {
		return nil, fmt.Errorf("coordinate size %d is not positive%w", coordinateSize, model.ErrMalformedSignature)
	}
	if len(der) == 0 || der[0] != 0x30 {
		return nil, fmt.Errorf("signature is not a DER SEQUENCE%w", model.ErrMalformedSignature)
	}

	sig := ecdsaSignature{}
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, fmt.Errorf("%s%w", err.Error(), model.ErrMalformedSignature)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing bytes after signature%w", model.ErrMalformedSignature)
	}
	if sig.R.Sign() < 0 || sig.S.Sign() < 0 {
		return nil, fmt.Errorf("signature component is negative%w", model.ErrMalformedSignature)
	}

	// asn1.Unmarshal already strips the DER sign padding zero byte.
	if len(sig.R.Bytes()) > coordinateSize || len(sig.S.Bytes()) > coordinateSize {
		return nil, fmt.Errorf("signature component exceeds %d bytes%w", coordinateSize, model.ErrMalformedSignature)
	}

	raw := make([]byte, 2*coordinateSize)
	sig.R.FillBytes(raw[:coordinateSize])
	sig.S.FillBytes(raw[coordinateSize:])
	return raw, nil
}

// RawToDER is the inverse of DERToRaw. asn1.Marshal re-adds the leading zero
// byte to any component whose high bit is set so the INTEGER stays positive.
func RawToDER(raw []byte, coordinateSize int) ([]byte, error) {
	if coordinateSize <= 0 {
		return nil, fmt.Errorf("coordinate size %d is not positive%w", coordinateSize, model.ErrMalformedSignature)
	}
	if len(raw) != 2*coordinateSize {
		return nil, fmt.Errorf("raw signature length %d is not %d%w", len(raw), 2*coordinateSize, model.ErrMalformedSignature)
	}

	sig := ecdsaSignature{
		R: new(big.Int).SetBytes(raw[:coordinateSize]),
		S: new(big.Int).SetBytes(raw[coordinateSize:]),
	}

	der, err := asn1.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("%s%w", err.Error(), model.ErrMalformedSignature)
	}
	return der, nil
}
