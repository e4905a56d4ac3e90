// Package pipeline drives the external manifest embedding engine to produce
// and verify signed assets.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/openc2pa/openc2pa/pkg/c2pa"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/signer"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// State tracks a signing request through the pipeline. SignFailed is terminal
// and propagates the signing error; VerifyFailed is terminal but the signed
// bytes were already produced and are still returned.
type State string

const (
	StateIdle               State = "idle"
	StateBuilderConstructed State = "builder_constructed"
	StateSigning            State = "signing"
	StateSigned             State = "signed"
	StateSignFailed         State = "sign_failed"
	StateVerifying          State = "verifying"
	StateVerified           State = "verified"
	StateVerifyFailed       State = "verify_failed"
	StateDone               State = "done"
)

type SignRequest struct {
	ManifestJSON string `json:"manifestJSON"`
	Format       string `json:"format"` // MIME type of the asset, e.g. image/jpeg.
	Asset        []byte `json:"-"`
	Verify       bool   `json:"verify,omitempty"`
}

type SignResult struct {
	SignedAsset   []byte
	ManifestStore []byte

	Algorithm             signer.Algorithm
	CertChainPEM          string
	TimestampAuthorityURL string

	State State
	// ActiveManifest is set when the verification round-trip succeeded.
	ActiveManifest *c2pa.Manifest
}

type Pipeline struct {
	engine c2pa.Engine

	signedCount       metric.Int64Counter
	verifyFailedCount metric.Int64Counter
}

func NewPipeline(engine c2pa.Engine) *Pipeline {
	meter := otel.Meter("github.com/openc2pa/openc2pa/pkg/sign_server/pipeline")
	signedCount, _ := meter.Int64Counter("sign_server.pipeline.signed")
	verifyFailedCount, _ := meter.Int64Counter("sign_server.pipeline.verify_failed")

	return &Pipeline{
		engine:            engine,
		signedCount:       signedCount,
		verifyFailedCount: verifyFailedCount,
	}
}

func ValidateSignRequest(req SignRequest) error {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.ManifestJSON, validation.Required),
		validation.Field(&req.Format, validation.Required),
		validation.Field(&req.Asset, validation.Required),
	); err != nil {
		return fmt.Errorf("%s%w", err.Error(), model.ErrInvalidParameter)
	}
	return nil
}

// SignAsset runs one signing request end to end. It blocks on the engine and
// on the signer; callers needing timeouts wrap ctx before calling. Builder
// and reader handles are released on every exit path.
func (p *Pipeline) SignAsset(ctx context.Context, req SignRequest, s signer.Signer) (SignResult, error) {
	if err := ValidateSignRequest(req); err != nil {
		return SignResult{}, err
	}

	result := SignResult{
		Algorithm:             s.Algorithm(),
		CertChainPEM:          s.CertChainPEM(),
		TimestampAuthorityURL: s.TimestampAuthorityURL(),
		State:                 StateIdle,
	}

	builder, err := p.engine.NewBuilder(req.ManifestJSON)
	if err != nil {
		return result, fmt.Errorf("construct manifest builder: %s%w", err.Error(), model.ErrSigningFailed)
	}
	defer builder.Close()
	result.State = StateBuilderConstructed

	info := c2pa.SignerInfo{
		Algorithm:             string(s.Algorithm()),
		CertChainPEM:          s.CertChainPEM(),
		TimestampAuthorityURL: s.TimestampAuthorityURL(),
		Sign:                  s.Sign,
	}

	result.State = StateSigning
	dest := bytes.Buffer{}
	manifestStore, err := builder.Sign(ctx, info, req.Format, bytes.NewReader(req.Asset), &dest)
	if err != nil {
		// The partial result is returned so callers can observe the failed
		// state.
		result.State = StateSignFailed
		if errors.Is(err, model.ErrSigningFailed) {
			return result, err
		}
		return result, fmt.Errorf("engine sign: %s%w", err.Error(), model.ErrSigningFailed)
	}
	result.State = StateSigned
	result.SignedAsset = dest.Bytes()
	result.ManifestStore = manifestStore
	p.signedCount.Add(ctx, 1)

	if req.Verify {
		p.verify(&result, req.Format)
	}

	result.State = StateDone
	return result, nil
}

// verify re-parses the signed asset as a local sanity check. A failure is
// logged and counted but never reverts a successful sign.
func (p *Pipeline) verify(result *SignResult, format string) {
	result.State = StateVerifying

	reader, err := p.engine.NewReader(format, bytes.NewReader(result.SignedAsset))
	if err != nil {
		logrus.Warnf("Verification of signed asset failed: %v", err)
		p.verifyFailedCount.Add(context.Background(), 1)
		result.State = StateVerifyFailed
		return
	}
	defer reader.Close()

	manifest, err := reader.ActiveManifest()
	if err != nil {
		logrus.Warnf("Reading active manifest failed: %v", err)
		p.verifyFailedCount.Add(context.Background(), 1)
		result.State = StateVerifyFailed
		return
	}

	result.ActiveManifest = &manifest
	result.State = StateVerified
}
