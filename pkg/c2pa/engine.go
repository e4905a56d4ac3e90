// Package c2pa declares the capability surface of the native manifest
// embedding engine. The engine itself is an external collaborator; this
// package only fixes the contract the signing pipeline depends on.
package c2pa

import (
	"context"
	"io"
)

// SignerInfo is everything the engine needs to embed a signature: the COSE
// algorithm name, the leaf-first certificate chain, an optional timestamp
// authority, and the raw sign callback. Sign must return the fixed-width raw
// signature for the algorithm (64 bytes for es256 and ed25519).
type SignerInfo struct {
	Algorithm             string
	CertChainPEM          string
	TimestampAuthorityURL string
	Sign                  func(ctx context.Context, data []byte) ([]byte, error)
}

// Engine creates builders and readers. Implementations wrap the native
// library; handles returned from it must be released with Close.
type Engine interface {
	// NewBuilder constructs a manifest builder from a manifest definition in
	// JSON form.
	NewBuilder(manifestJSON string) (Builder, error)

	// NewReader parses a signed asset and gives access to its manifest store.
	NewReader(format string, asset io.Reader) (Reader, error)
}

// Builder embeds a signed manifest into an asset stream.
type Builder interface {
	// Sign reads the asset from source, writes the signed asset to dest and
	// returns the raw manifest store bytes. It blocks until the engine and
	// the signer callback complete.
	Sign(ctx context.Context, info SignerInfo, format string, source io.Reader, dest io.Writer) ([]byte, error)
	Close() error
}

// Reader exposes the active manifest of a signed asset.
type Reader interface {
	ActiveManifest() (Manifest, error)
	// JSON returns the full manifest store report.
	JSON() (string, error)
	Close() error
}

// Manifest is the subset of the active manifest record the service inspects
// after a verification round-trip.
type Manifest struct {
	ClaimGenerator string `json:"claim_generator"`
	Title          string `json:"title"`
}
