package keystore_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftwareKeyStore(t *testing.T) {
	keyStore := keystore.NewSoftwareKeyStore()

	require.NoError(t, keyStore.Generate("ecdsa-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256}))
	require.NoError(t, keyStore.Generate("ed25519-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeEd25519}))

	signer, err := keyStore.Signer("ecdsa-key")
	require.NoError(t, err)
	pubKey, ok := signer.Public().(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, elliptic.P256(), pubKey.Curve)

	digest := sha256.Sum256([]byte("payload"))
	derSig, err := signer.Sign(rand.Reader, digest[:], nil)
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(pubKey, digest[:], derSig))

	signer, err = keyStore.Signer("ed25519-key")
	require.NoError(t, err)
	_, ok = signer.Public().(ed25519.PublicKey)
	assert.True(t, ok)

	storedPub, err := keyStore.PublicKey("ecdsa-key")
	require.NoError(t, err)
	assert.True(t, pubKey.Equal(storedPub))
}

func TestSoftwareKeyStoreUnknownAlias(t *testing.T) {
	keyStore := keystore.NewSoftwareKeyStore()

	_, err := keyStore.Signer("missing")
	assert.Error(t, err)
	_, err = keyStore.PublicKey("missing")
	assert.Error(t, err)
	assert.Error(t, keyStore.Delete("missing"))
}

func TestSoftwareKeyStoreGenerateReplacesKey(t *testing.T) {
	keyStore := keystore.NewSoftwareKeyStore()

	require.NoError(t, keyStore.Generate("signing-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256}))
	firstPub, err := keyStore.PublicKey("signing-key")
	require.NoError(t, err)

	require.NoError(t, keyStore.Generate("signing-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256}))
	secondPub, err := keyStore.PublicKey("signing-key")
	require.NoError(t, err)

	assert.False(t, firstPub.(*ecdsa.PublicKey).Equal(secondPub))
}

func TestSoftwareKeyStoreRejectsUnsupportedOptions(t *testing.T) {
	keyStore := keystore.NewSoftwareKeyStore()

	assert.Error(t, keyStore.Generate("rsa-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeRSA, BitLength: 2048}))
	assert.Error(t, keyStore.Generate("bad-curve", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: "P-999"}))
}

func TestSoftwareKeyStoreConcurrentAccess(t *testing.T) {
	keyStore := keystore.NewSoftwareKeyStore()
	require.NoError(t, keyStore.Generate("shared-key", pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeEd25519}))

	wg := sync.WaitGroup{}
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := keyStore.Signer("shared-key")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
