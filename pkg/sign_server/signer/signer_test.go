package signer_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/keystore"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SignerTestSuite struct {
	suite.Suite

	ctx           context.Context
	ecdsaKeyPEM   string
	ecdsaKey      *ecdsa.PrivateKey
	ed25519KeyPEM string
	ed25519Key    ed25519.PrivateKey
}

func TestSignerTestSuite(t *testing.T) {
	suite.Run(t, new(SignerTestSuite))
}

func (s *SignerTestSuite) SetupSuite() {
	s.ctx = context.Background()

	ecKey, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	s.Require().NoError(err)
	s.ecdsaKey = ecKey.(*ecdsa.PrivateKey)
	s.ecdsaKeyPEM, err = pkix.MarshalPrivateKey(ecKey)
	s.Require().NoError(err)

	edKey, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeEd25519})
	s.Require().NoError(err)
	s.ed25519Key = edKey.(ed25519.PrivateKey)
	s.ed25519KeyPEM, err = pkix.MarshalPrivateKey(edKey)
	s.Require().NoError(err)
}

func (s *SignerTestSuite) TestKeyPairSignerES256() {
	keyPairSigner, err := signer.NewKeyPairSigner(signer.AlgorithmES256, s.ecdsaKeyPEM, "chain pem", "http://tsa.example.com")
	s.Require().NoError(err)

	s.Assert().Equal(signer.AlgorithmES256, keyPairSigner.Algorithm())
	s.Assert().Equal("chain pem", keyPairSigner.CertChainPEM())
	s.Assert().Equal("http://tsa.example.com", keyPairSigner.TimestampAuthorityURL())

	data := []byte("bytes to be signed")
	signature, err := keyPairSigner.Sign(s.ctx, data)
	s.Require().NoError(err)
	s.Require().Len(signature, 64)

	digest := sha256.Sum256(data)
	r := new(big.Int).SetBytes(signature[:32])
	sg := new(big.Int).SetBytes(signature[32:])
	s.Assert().True(ecdsa.Verify(&s.ecdsaKey.PublicKey, digest[:], r, sg))
}

func (s *SignerTestSuite) TestKeyPairSignerES256EmptyPayload() {
	keyPairSigner, err := signer.NewKeyPairSigner(signer.AlgorithmES256, s.ecdsaKeyPEM, "", "")
	s.Require().NoError(err)

	signature, err := keyPairSigner.Sign(s.ctx, nil)
	s.Require().NoError(err)
	s.Assert().Len(signature, 64)
}

func (s *SignerTestSuite) TestKeyPairSignerEd25519() {
	keyPairSigner, err := signer.NewKeyPairSigner(signer.AlgorithmEd25519, s.ed25519KeyPEM, "", "")
	s.Require().NoError(err)

	data := []byte("bytes to be signed")
	signature, err := keyPairSigner.Sign(s.ctx, data)
	s.Require().NoError(err)
	s.Require().Len(signature, 64)
	s.Assert().True(ed25519.Verify(s.ed25519Key.Public().(ed25519.PublicKey), data, signature))
}

func (s *SignerTestSuite) TestKeyPairSignerKeyMismatch() {
	_, err := signer.NewKeyPairSigner(signer.AlgorithmES256, s.ed25519KeyPEM, "", "")
	s.Assert().ErrorIs(err, model.ErrInvalidParameter)

	_, err = signer.NewKeyPairSigner(signer.AlgorithmEd25519, s.ecdsaKeyPEM, "", "")
	s.Assert().ErrorIs(err, model.ErrInvalidParameter)

	_, err = signer.NewKeyPairSigner(signer.AlgorithmES256, "not a pem", "", "")
	s.Assert().ErrorIs(err, model.ErrInvalidParameter)
}

func (s *SignerTestSuite) TestCallbackSigner() {
	var receivedData []byte
	callback := func(ctx context.Context, data []byte) ([]byte, error) {
		receivedData = data
		return make([]byte, 64), nil
	}

	callbackSigner, err := signer.NewCallbackSigner(signer.AlgorithmES256, "chain pem", "", callback)
	s.Require().NoError(err)

	signature, err := callbackSigner.Sign(s.ctx, []byte("payload"))
	s.Require().NoError(err)
	s.Assert().Len(signature, 64)
	s.Assert().Equal([]byte("payload"), receivedData)
}

func (s *SignerTestSuite) TestCallbackSignerWrongSignatureSize() {
	for _, size := range []int{0, 63, 65, 96} {
		callbackSigner, err := signer.NewCallbackSigner(signer.AlgorithmES256, "", "", func(ctx context.Context, data []byte) ([]byte, error) {
			return make([]byte, size), nil
		})
		s.Require().NoError(err)

		_, err = callbackSigner.Sign(s.ctx, []byte("payload"))
		s.Assert().ErrorIs(err, model.ErrSigningFailed, "size %d", size)
	}
}

func (s *SignerTestSuite) TestCallbackSignerErrorNormalization() {
	callbackSigner, err := signer.NewCallbackSigner(signer.AlgorithmES256, "", "", func(ctx context.Context, data []byte) ([]byte, error) {
		return nil, errors.New("remote endpoint exploded")
	})
	s.Require().NoError(err)

	_, err = callbackSigner.Sign(s.ctx, []byte("payload"))
	s.Require().ErrorIs(err, model.ErrSigningFailed)
	s.Assert().Contains(err.Error(), "remote endpoint exploded")
}

func (s *SignerTestSuite) TestKeyStoreCallback() {
	keyStore := keystore.NewSoftwareKeyStore()
	s.Require().NoError(keyStore.Generate("signing-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256}))
	key, err := keyStore.Signer("signing-key")
	s.Require().NoError(err)

	callbackSigner, err := signer.NewCallbackSigner(signer.AlgorithmES256, "", "", signer.KeyStoreCallback(key, signer.AlgorithmES256))
	s.Require().NoError(err)

	data := []byte("bytes to be signed")
	signature, err := callbackSigner.Sign(s.ctx, data)
	s.Require().NoError(err)
	s.Require().Len(signature, 64)

	digest := sha256.Sum256(data)
	r := new(big.Int).SetBytes(signature[:32])
	sg := new(big.Int).SetBytes(signature[32:])
	s.Assert().True(ecdsa.Verify(key.Public().(*ecdsa.PublicKey), digest[:], r, sg))
}

func TestParseAlgorithm(t *testing.T) {
	algorithm, err := signer.ParseAlgorithm("ES256")
	require.NoError(t, err)
	assert.Equal(t, signer.AlgorithmES256, algorithm)

	algorithm, err = signer.ParseAlgorithm("ed25519")
	require.NoError(t, err)
	assert.Equal(t, signer.AlgorithmEd25519, algorithm)

	// JOSE spellings resolve to the same algorithms.
	algorithm, err = signer.ParseAlgorithm("EdDSA")
	require.NoError(t, err)
	assert.Equal(t, signer.AlgorithmEd25519, algorithm)

	algorithm, err = signer.ParseAlgorithm("es256")
	require.NoError(t, err)
	assert.Equal(t, signer.AlgorithmES256, algorithm)

	_, err = signer.ParseAlgorithm("rs256")
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestNewSigner(t *testing.T) {
	ecKey, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	require.NoError(t, err)
	ecKeyPEM, err := pkix.MarshalPrivateKey(ecKey)
	require.NoError(t, err)

	// Key pair mode.
	signingCapability, err := signer.NewSigner(signer.Config{
		Mode:          signer.ModeKeyPair,
		Algorithm:     signer.AlgorithmES256,
		CertChainPEM:  "chain pem",
		PrivateKeyPEM: ecKeyPEM,
	})
	require.NoError(t, err)
	assert.IsType(t, &signer.KeyPairSigner{}, signingCapability)

	// Key store mode.
	keyStore := keystore.NewSoftwareKeyStore()
	require.NoError(t, keyStore.Generate("signing-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256}))
	signingCapability, err = signer.NewSigner(signer.Config{
		Mode:         signer.ModeKeyStore,
		Algorithm:    signer.AlgorithmES256,
		CertChainPEM: "chain pem",
		KeyStore:     keyStore,
		KeyAlias:     "signing-key",
	})
	require.NoError(t, err)
	assert.IsType(t, &signer.CallbackSigner{}, signingCapability)

	// Callback mode, with the JOSE algorithm spelling normalized by the
	// factory.
	signingCapability, err = signer.NewSigner(signer.Config{
		Mode:         signer.ModeCallback,
		Algorithm:    signer.Algorithm("EdDSA"),
		CertChainPEM: "chain pem",
		Callback: func(ctx context.Context, data []byte) ([]byte, error) {
			return make([]byte, 64), nil
		},
	})
	require.NoError(t, err)
	assert.IsType(t, &signer.CallbackSigner{}, signingCapability)
	assert.Equal(t, signer.AlgorithmEd25519, signingCapability.Algorithm())
}

func TestNewSignerInvalidConfig(t *testing.T) {
	// Missing mode.
	_, err := signer.NewSigner(signer.Config{Algorithm: signer.AlgorithmES256, CertChainPEM: "chain"})
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	// Missing chain.
	_, err = signer.NewSigner(signer.Config{Mode: signer.ModeCallback, Algorithm: signer.AlgorithmES256})
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	// Key pair mode without key material.
	_, err = signer.NewSigner(signer.Config{Mode: signer.ModeKeyPair, Algorithm: signer.AlgorithmES256, CertChainPEM: "chain"})
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	// Key store mode without a key store.
	_, err = signer.NewSigner(signer.Config{Mode: signer.ModeKeyStore, Algorithm: signer.AlgorithmES256, CertChainPEM: "chain", KeyAlias: "signing-key"})
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	// Unknown algorithm.
	_, err = signer.NewSigner(signer.Config{Mode: signer.ModeCallback, Algorithm: "rs256", CertChainPEM: "chain"})
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}
