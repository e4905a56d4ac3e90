package cert_authority_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	eblpkix "github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cert_authority"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	mock_storage "github.com/openc2pa/openc2pa/test/mock/sign_server/storage"
	"github.com/stretchr/testify/suite"
)

type CertAuthorityTestSuite struct {
	suite.Suite

	ctrl      *gomock.Controller
	ctx       context.Context
	storage   *mock_storage.MockCertStorage
	tx        *mock_storage.MockTx
	hierarchy cert_authority.Hierarchy
	ca        cert_authority.CertAuthority
}

func TestCertAuthorityTestSuite(t *testing.T) {
	suite.Run(t, new(CertAuthorityTestSuite))
}

func (s *CertAuthorityTestSuite) SetupSuite() {
	hierarchy, err := cert_authority.GenerateHierarchy(
		cert_authority.HierarchyOption{
			Country:      []string{"US"},
			Organization: []string{"OpenC2PA"},
			CommonName:   "OpenC2PA Test Root CA",
		},
		cert_authority.DefaultValidityPolicy(),
		time.Now().Unix(),
	)
	s.Require().NoError(err)
	s.hierarchy = hierarchy
}

func (s *CertAuthorityTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.storage = mock_storage.NewMockCertStorage(s.ctrl)
	s.tx = mock_storage.NewMockTx(s.ctrl)

	ca, err := cert_authority.NewCertAuthority(s.hierarchy, nil, s.storage)
	s.Require().NoError(err)
	s.ca = ca
}

func (s *CertAuthorityTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CertAuthorityTestSuite) newCSR(commonName string) string {
	privKey, err := eblpkix.CreatePrivateKey(eblpkix.PrivateKeyOption{KeyType: eblpkix.PrivateKeyTypeECDSA, CurveType: eblpkix.ECDSACurveTypeP256})
	s.Require().NoError(err)
	csrPEM, err := eblpkix.CreateCertificateSigningRequest(privKey, []string{"US"}, []string{"Signer Org"}, []string{"Imaging"}, commonName)
	s.Require().NoError(err)
	return string(csrPEM)
}

func (s *CertAuthorityTestSuite) expectStore(stored *model.IssuedCertificate) {
	gomock.InOrder(
		s.storage.EXPECT().CreateTx(gomock.Any(), gomock.Len(2)).Return(s.tx, s.ctx, nil),
		s.storage.EXPECT().AddIssuedCertificate(gomock.Any(), s.tx, gomock.Any()).DoAndReturn(
			func(ctx context.Context, tx storage.Tx, cert model.IssuedCertificate) error {
				if stored != nil {
					*stored = cert
				}
				return nil
			},
		),
		s.tx.EXPECT().Commit(gomock.Any()).Return(nil),
		s.tx.EXPECT().Rollback(gomock.Any()).Return(nil),
	)
}

func (s *CertAuthorityTestSuite) TestSignCSR() {
	ts := time.Now().Unix()
	stored := model.IssuedCertificate{}
	s.expectStore(&stored)

	cert, err := s.ca.SignCSR(s.ctx, ts, cert_authority.SignCSRRequest{
		Requester: "device-123",
		CSR:       s.newCSR("Camera Model X"),
	})
	s.Require().NoError(err)

	s.Assert().NotEmpty(cert.ID)
	s.Assert().Equal(model.EndEntityCert, cert.Role)
	s.Assert().NotEmpty(cert.SerialNumber)
	s.Assert().Equal("device-123", cert.IssuedFor)
	s.Assert().Empty(cert.PrivateKey)
	s.Assert().Contains(cert.CertFingerPrint, "sha1:")

	// Validity is 365 days from issuance.
	s.Assert().Equal(ts, cert.NotBefore)
	s.Assert().Equal(time.Unix(ts, 0).Add(365*24*time.Hour).Unix(), cert.NotAfter)

	// Chain is leaf first and verifies against the root.
	certs, err := eblpkix.ParseCertificate([]byte(cert.CertificateChain))
	s.Require().NoError(err)
	s.Require().Len(certs, 3)
	s.Assert().Equal("Camera Model X", certs[0].Subject.CommonName)
	s.Assert().NoError(eblpkix.Verify(certs[:2], certs[2:], ts+60))

	s.Assert().Equal(cert.ID, stored.ID)
}

func (s *CertAuthorityTestSuite) TestSignCSRWithMetadataOverride() {
	ts := time.Now().Unix()
	s.expectStore(nil)

	cert, err := s.ca.SignCSR(s.ctx, ts, cert_authority.SignCSRRequest{
		Requester: "device-123",
		CSR:       s.newCSR("Camera Model X"),
		Metadata: &cert_authority.CertMetadata{
			CommonName:   "Renamed Device",
			Organization: []string{"Another Org"},
		},
	})
	s.Require().NoError(err)

	certs, err := eblpkix.ParseCertificate([]byte(cert.CertificateChain))
	s.Require().NoError(err)
	s.Assert().Equal("Renamed Device", certs[0].Subject.CommonName)
	s.Assert().Equal([]string{"Another Org"}, certs[0].Subject.Organization)
}

func (s *CertAuthorityTestSuite) TestSignCSRInvalidRequest() {
	ts := time.Now().Unix()

	// Empty CSR never reaches storage.
	_, err := s.ca.SignCSR(s.ctx, ts, cert_authority.SignCSRRequest{Requester: "device-123"})
	s.Assert().ErrorIs(err, model.ErrCertificateRequestInvalid)

	// A PEM block that is not a certificate request.
	_, err = s.ca.SignCSR(s.ctx, ts, cert_authority.SignCSRRequest{
		Requester: "device-123",
		CSR:       "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n",
	})
	s.Assert().ErrorIs(err, model.ErrCertificateRequestInvalid)

	// Garbage inside the certificate request block.
	_, err = s.ca.SignCSR(s.ctx, ts, cert_authority.SignCSRRequest{
		Requester: "device-123",
		CSR:       "-----BEGIN CERTIFICATE REQUEST-----\nAAAA\n-----END CERTIFICATE REQUEST-----\n",
	})
	s.Assert().ErrorIs(err, model.ErrCertificateRequestInvalid)
}

func (s *CertAuthorityTestSuite) TestIssueTemporaryCertificate() {
	ts := time.Now().Unix()
	stored := model.IssuedCertificate{}
	s.expectStore(&stored)

	cert, err := s.ca.IssueTemporaryCertificate(s.ctx, ts)
	s.Require().NoError(err)

	s.Assert().Equal(model.TemporaryCert, cert.Role)
	s.Assert().Equal(ts, cert.NotBefore)
	s.Assert().Equal(time.Unix(ts, 0).Add(24*time.Hour).Unix(), cert.NotAfter)

	// The caller receives the key; the stored record does not carry it.
	s.Require().NotEmpty(cert.PrivateKey)
	privKey, err := eblpkix.ParsePrivateKey([]byte(cert.PrivateKey))
	s.Require().NoError(err)

	certs, err := eblpkix.ParseCertificate([]byte(cert.CertificateChain))
	s.Require().NoError(err)
	s.Require().Len(certs, 3)
	s.Assert().True(eblpkix.IsPublicKeyOf(privKey, certs[0].PublicKey))
	s.Assert().NoError(eblpkix.Verify(certs[:2], certs[2:], ts+60))
}

func (s *CertAuthorityTestSuite) TestConcurrentIssuanceProducesDistinctSerials() {
	ts := time.Now().Unix()
	workerCount := 100

	mtx := sync.Mutex{}
	storedCerts := make([]model.IssuedCertificate, 0, workerCount)

	s.storage.EXPECT().CreateTx(gomock.Any(), gomock.Len(2)).Return(s.tx, s.ctx, nil).Times(workerCount)
	s.storage.EXPECT().AddIssuedCertificate(gomock.Any(), s.tx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, tx storage.Tx, cert model.IssuedCertificate) error {
			mtx.Lock()
			defer mtx.Unlock()
			storedCerts = append(storedCerts, cert)
			return nil
		},
	).Times(workerCount)
	s.tx.EXPECT().Commit(gomock.Any()).Return(nil).Times(workerCount)
	s.tx.EXPECT().Rollback(gomock.Any()).Return(nil).Times(workerCount)

	wg := sync.WaitGroup{}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ca.SignCSR(s.ctx, ts, cert_authority.SignCSRRequest{
				Requester: "device-123",
				CSR:       s.newCSR("Concurrent Device"),
			})
			s.Assert().NoError(err)
		}()
	}
	wg.Wait()

	s.Require().Len(storedCerts, workerCount)
	serials := make(map[string]struct{}, workerCount)
	ids := make(map[string]struct{}, workerCount)
	for _, cert := range storedCerts {
		serials[cert.SerialNumber] = struct{}{}
		ids[cert.ID] = struct{}{}
	}
	s.Assert().Len(serials, workerCount)
	s.Assert().Len(ids, workerCount)
}

func (s *CertAuthorityTestSuite) TestListIssuedCertificates() {
	req := storage.ListIssuedCertificatesRequest{
		Offset: 0,
		Limit:  10,
		Roles:  []model.CertRole{model.EndEntityCert},
	}
	expected := storage.ListIssuedCertificatesResponse{
		Total: 1,
		Certs: []model.IssuedCertificate{{ID: "cert_id", Role: model.EndEntityCert}},
	}

	gomock.InOrder(
		s.storage.EXPECT().CreateTx(gomock.Any(), gomock.Len(0)).Return(s.tx, s.ctx, nil),
		s.storage.EXPECT().ListIssuedCertificates(gomock.Any(), s.tx, req).Return(expected, nil),
		s.tx.EXPECT().Rollback(gomock.Any()).Return(nil),
	)

	result, err := s.ca.ListIssuedCertificates(s.ctx, req)
	s.Require().NoError(err)
	s.Assert().Equal(expected, result)
}

func (s *CertAuthorityTestSuite) TestListIssuedCertificatesInvalidRequest() {
	_, err := s.ca.ListIssuedCertificates(s.ctx, storage.ListIssuedCertificatesRequest{Offset: -1, Limit: 10})
	s.Assert().ErrorIs(err, model.ErrInvalidParameter)

	_, err = s.ca.ListIssuedCertificates(s.ctx, storage.ListIssuedCertificatesRequest{Limit: 0})
	s.Assert().ErrorIs(err, model.ErrInvalidParameter)
}

func (s *CertAuthorityTestSuite) TestNewCertAuthorityIncompleteHierarchy() {
	_, err := cert_authority.NewCertAuthority(cert_authority.Hierarchy{}, nil, s.storage)
	s.Assert().ErrorIs(err, model.ErrServiceUnavailable)

	partial := s.hierarchy
	partial.IntermediateKey = nil
	_, err = cert_authority.NewCertAuthority(partial, nil, s.storage)
	s.Assert().ErrorIs(err, model.ErrServiceUnavailable)
}

func (s *CertAuthorityTestSuite) TestValidityClampedToIssuer() {
	// A policy longer than the intermediate lifetime gets clamped.
	policy := cert_authority.ValidityPolicy{
		model.EndEntityCert: 30000 * 24 * time.Hour,
	}
	ca, err := cert_authority.NewCertAuthority(s.hierarchy, policy, s.storage)
	s.Require().NoError(err)

	s.expectStore(nil)
	cert, err := ca.SignCSR(s.ctx, time.Now().Unix(), cert_authority.SignCSRRequest{
		Requester: "device-123",
		CSR:       s.newCSR("Long Lived Device"),
	})
	s.Require().NoError(err)
	s.Assert().Equal(s.hierarchy.IntermediateCert.NotAfter.Unix(), cert.NotAfter)
}
