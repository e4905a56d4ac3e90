package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/openc2pa/openc2pa/pkg/c2pa"
	eblpkix "github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cert_authority"
	"github.com/openc2pa/openc2pa/pkg/sign_server/keystore"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/pipeline"
	"github.com/openc2pa/openc2pa/pkg/sign_server/signer"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage/postgres"
	"github.com/openc2pa/openc2pa/pkg/util"
	"golang.org/x/time/rate"
)

const maxUploadSize = 64 << 20 // 64 MiB asset uploads.

type RestServerConfig struct {
	Database      util.PostgresDatabaseConfig `yaml:"database"`
	ServerAddress string                      `yaml:"server_address"`

	// BearerTokenHash is the bcrypt hash of the shared bearer secret. Empty
	// disables authentication.
	BearerTokenHash string `yaml:"bearer_token_hash"`

	// RateLimit is requests per second for the public endpoints. Zero
	// disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// Hierarchy material. When all four are empty a fresh hierarchy is
	// generated at startup.
	RootCertFile         string `yaml:"root_cert_file"`
	RootKeyFile          string `yaml:"root_key_file"`
	IntermediateCertFile string `yaml:"intermediate_cert_file"`
	IntermediateKeyFile  string `yaml:"intermediate_key_file"`

	CAName         string   `yaml:"ca_name"`
	CACountry      []string `yaml:"ca_country"`
	CAOrganization []string `yaml:"ca_organization"`

	// Signing identity served on /api/v1/c2pa/sign.
	Signer signer.Config `yaml:"signer"`

	// SigningURL advertised in the configuration payload for remote-signing
	// clients.
	SigningURL string `yaml:"signing_url"`
}

type RestServer struct {
	ca         cert_authority.CertAuthority
	pipeline   *pipeline.Pipeline
	signer     signer.Signer
	signingURL string
	router     *mux.Router
	httpServer *http.Server
}

func loadOrGenerateHierarchy(config RestServerConfig) (cert_authority.Hierarchy, error) {
	if config.RootCertFile == "" && config.RootKeyFile == "" &&
		config.IntermediateCertFile == "" && config.IntermediateKeyFile == "" {
		option := cert_authority.HierarchyOption{
			Country:      config.CACountry,
			Organization: config.CAOrganization,
			CommonName:   config.CAName,
		}
		if option.CommonName == "" {
			option.CommonName = "OpenC2PA Root CA"
		}
		return cert_authority.GenerateHierarchy(option, cert_authority.DefaultValidityPolicy(), time.Now().Unix())
	}

	files := make([]string, 0, 4)
	for _, name := range []string{config.RootCertFile, config.RootKeyFile, config.IntermediateCertFile, config.IntermediateKeyFile} {
		content, err := os.ReadFile(name)
		if err != nil {
			return cert_authority.Hierarchy{}, err
		}
		files = append(files, string(content))
	}
	return cert_authority.LoadHierarchy(files[0], files[1], files[2], files[3])
}

func NewRestServerWithConfig(config RestServerConfig, engine c2pa.Engine) (*RestServer, error) {
	certStorage, err := postgres.NewStorageWithConfig(config.Database)
	if err != nil {
		return nil, err
	}

	hierarchy, err := loadOrGenerateHierarchy(config)
	if err != nil {
		return nil, err
	}
	ca, err := cert_authority.NewCertAuthority(hierarchy, nil, certStorage)
	if err != nil {
		return nil, err
	}

	assetSigner, err := BootstrapSigner(context.Background(), ca, config.Signer)
	if err != nil {
		return nil, err
	}

	return NewRestServerWithController(ca, pipeline.NewPipeline(engine), assetSigner, config), nil
}

// BootstrapSigner completes a partially specified signer configuration against
// the built in CA and constructs the signer. An empty mode gets an in-process
// key pair backed by a temporary certificate. Key store mode without an
// injected store gets a software key store with a freshly generated key,
// enrolled with the CA.
func BootstrapSigner(ctx context.Context, ca cert_authority.CertAuthority, cfg signer.Config) (signer.Signer, error) {
	ts := time.Now().Unix()

	if cfg.Mode == "" {
		cert, err := ca.IssueTemporaryCertificate(ctx, ts)
		if err != nil {
			return nil, err
		}
		cfg = signer.Config{
			Mode:          signer.ModeKeyPair,
			Algorithm:     signer.AlgorithmES256,
			CertChainPEM:  cert.CertificateChain,
			PrivateKeyPEM: cert.PrivateKey,
		}
	}

	if cfg.Mode == signer.ModeKeyStore && cfg.KeyStore == nil {
		keyStore := keystore.NewSoftwareKeyStore()
		option := eblpkix.PrivateKeyOption{KeyType: eblpkix.PrivateKeyTypeECDSA, CurveType: eblpkix.ECDSACurveTypeP256}
		if algorithm, err := signer.ParseAlgorithm(string(cfg.Algorithm)); err == nil && algorithm == signer.AlgorithmEd25519 {
			option = eblpkix.PrivateKeyOption{KeyType: eblpkix.PrivateKeyTypeEd25519}
		}
		if err := keyStore.Generate(cfg.KeyAlias, option); err != nil {
			return nil, err
		}

		key, err := keyStore.Signer(cfg.KeyAlias)
		if err != nil {
			return nil, err
		}
		csrPEM, err := eblpkix.CreateCertificateSigningRequest(key, nil, nil, nil, cfg.KeyAlias)
		if err != nil {
			return nil, err
		}
		cert, err := ca.SignCSR(ctx, ts, cert_authority.SignCSRRequest{
			Requester: cfg.KeyAlias,
			CSR:       string(csrPEM),
		})
		if err != nil {
			return nil, err
		}

		cfg.KeyStore = keyStore
		// A configured chain cannot belong to the key generated above, so the
		// enrolled chain always wins.
		cfg.CertChainPEM = cert.CertificateChain
	}

	return signer.NewSigner(cfg)
}

func NewRestServerWithController(ca cert_authority.CertAuthority, p *pipeline.Pipeline, assetSigner signer.Signer, config RestServerConfig) *RestServer {
	restServer := &RestServer{
		ca:         ca,
		pipeline:   p,
		signer:     assetSigner,
		signingURL: config.SigningURL,
	}

	auth := NewBearerAuth(config.BearerTokenHash)

	router := mux.NewRouter()
	router.Use(Log)
	if config.RateLimit > 0 {
		router.Use(RateLimit(rate.NewLimiter(rate.Limit(config.RateLimit), int(config.RateLimit)+1)))
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(auth.Authenticate)
	apiRouter.HandleFunc("/certificates/sign", restServer.signCSR).Methods(http.MethodPost)
	apiRouter.HandleFunc("/certificates/temporary", restServer.issueTemporaryCert).Methods(http.MethodPost)
	apiRouter.HandleFunc("/certificates", restServer.listCerts).Methods(http.MethodGet)
	apiRouter.HandleFunc("/c2pa/sign", restServer.signAsset).Methods(http.MethodPost)
	apiRouter.HandleFunc("/c2pa/configuration", restServer.getConfiguration).Methods(http.MethodGet)

	if config.ServerAddress != "" {
		restServer.httpServer = &http.Server{
			Addr:    config.ServerAddress,
			Handler: router,
		}
	}
	restServer.router = router

	return restServer
}

// Handler exposes the routed handler, mainly for tests.
func (s *RestServer) Handler() http.Handler {
	return s.router
}

func (s *RestServer) Run() error {
	if s.httpServer == nil {
		return errors.New("no server to run")
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *RestServer) Close(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.httpServer.SetKeepAlivesEnabled(false)
	return s.httpServer.Shutdown(ctx)
}

type signCSRResponse struct {
	CertificateID    string `json:"certificate_id"`
	CertificateChain string `json:"certificate_chain"`
	PrivateKey       string `json:"private_key,omitempty"`
	SerialNumber     string `json:"serial_number"`
	ExpiresAt        int64  `json:"expires_at"`
}

func issuedCertToResponse(cert model.IssuedCertificate) signCSRResponse {
	return signCSRResponse{
		CertificateID:    cert.ID,
		CertificateChain: cert.CertificateChain,
		PrivateKey:       cert.PrivateKey,
		SerialNumber:     cert.SerialNumber,
		ExpiresAt:        cert.NotAfter,
	}
}

func (s *RestServer) signCSR(w http.ResponseWriter, r *http.Request) {
	ts := time.Now().Unix()
	ctx := r.Context()

	req := cert_authority.SignCSRRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %s", err.Error()), http.StatusBadRequest)
		return
	}

	cert, err := s.ca.SignCSR(ctx, ts, req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to sign CSR: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(issuedCertToResponse(cert))
}

func (s *RestServer) issueTemporaryCert(w http.ResponseWriter, r *http.Request) {
	ts := time.Now().Unix()
	ctx := r.Context()

	cert, err := s.ca.IssueTemporaryCertificate(ctx, ts)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to issue temporary certificate: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(issuedCertToResponse(cert))
}

func (s *RestServer) listCerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 10
	}
	req := storage.ListIssuedCertificatesRequest{
		Offset: offset,
		Limit:  limit,
	}

	result, err := s.ca.ListIssuedCertificates(ctx, req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list certificates: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

type jsonSignRequest struct {
	ManifestJSON string `json:"manifestJSON"`
	Format       string `json:"format"`
	ImageData    string `json:"imageData"` // base64 encoded asset bytes.
	Verify       bool   `json:"verify,omitempty"`
}

type signatureInfo struct {
	Algorithm             string `json:"algorithm"`
	CertificateChain      string `json:"certificate_chain"`
	TimestampAuthorityURL string `json:"timestamp_authority_url,omitempty"`
}

type jsonSignResponse struct {
	ManifestStore string        `json:"manifestStore"`
	SignatureInfo signatureInfo `json:"signatureInfo"`
}

func (s *RestServer) signAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := parseSignAssetRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %s", err.Error()), http.StatusBadRequest)
		return
	}

	result, err := s.pipeline.SignAsset(ctx, req, s.signer)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to sign asset: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		resp := jsonSignResponse{
			ManifestStore: base64.StdEncoding.EncodeToString(result.ManifestStore),
			SignatureInfo: signatureInfo{
				Algorithm:             string(result.Algorithm),
				CertificateChain:      result.CertChainPEM,
				TimestampAuthorityURL: result.TimestampAuthorityURL,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", req.Format)
	w.WriteHeader(http.StatusOK)
	w.Write(result.SignedAsset)
}

func parseSignAssetRequest(r *http.Request) (pipeline.SignRequest, error) {
	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return pipeline.SignRequest{}, err
	}

	if contentType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return pipeline.SignRequest{}, err
		}

		req := pipeline.SignRequest{}
		if err := json.Unmarshal([]byte(r.FormValue("request")), &req); err != nil {
			return pipeline.SignRequest{}, fmt.Errorf("parse request part: %w", err)
		}

		image, _, err := r.FormFile("image")
		if err != nil {
			return pipeline.SignRequest{}, fmt.Errorf("missing image part: %w", err)
		}
		defer image.Close()
		// Read one byte past the limit so an oversize upload is rejected
		// instead of signed truncated.
		req.Asset, err = io.ReadAll(io.LimitReader(image, maxUploadSize+1))
		if err != nil {
			return pipeline.SignRequest{}, err
		}
		if len(req.Asset) > maxUploadSize {
			return pipeline.SignRequest{}, fmt.Errorf("asset exceeds the %d byte upload limit", maxUploadSize)
		}
		return req, nil
	}

	jsonReq := jsonSignRequest{}
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxUploadSize)).Decode(&jsonReq); err != nil {
		return pipeline.SignRequest{}, err
	}
	asset, err := base64.StdEncoding.DecodeString(jsonReq.ImageData)
	if err != nil {
		return pipeline.SignRequest{}, fmt.Errorf("decode imageData: %w", err)
	}
	return pipeline.SignRequest{
		ManifestJSON: jsonReq.ManifestJSON,
		Format:       jsonReq.Format,
		Asset:        asset,
		Verify:       jsonReq.Verify,
	}, nil
}

type configurationResponse struct {
	Algorithm        string `json:"algorithm"`
	TimestampURL     string `json:"timestamp_url"`
	SigningURL       string `json:"signing_url"`
	CertificateChain string `json:"certificate_chain"` // base64 of the PEM chain.
}

func (s *RestServer) getConfiguration(w http.ResponseWriter, r *http.Request) {
	resp := configurationResponse{
		Algorithm:        string(s.signer.Algorithm()),
		TimestampURL:     s.signer.TimestampAuthorityURL(),
		SigningURL:       s.signingURL,
		CertificateChain: base64.StdEncoding.EncodeToString([]byte(s.signer.CertChainPEM())),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
