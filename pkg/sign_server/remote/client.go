// Package remote is the HTTP client side of the signing service: trust
// configuration fetch, hardware key enrollment, and the remote signing
// callback. Every call is single attempt; retry policy belongs to callers.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	eblpkix "github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/keystore"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/signer"
)

// Configuration is the trust/service configuration served by
// GET /api/v1/c2pa/configuration.
type Configuration struct {
	Algorithm        string `json:"algorithm"`
	TimestampURL     string `json:"timestamp_url"`
	SigningURL       string `json:"signing_url"`
	CertificateChain string `json:"certificate_chain"` // base64 of the PEM chain.
}

// CertificateChainPEM decodes the base64 wrapped PEM chain.
func (c Configuration) CertificateChainPEM() (string, error) {
	chain, err := base64.StdEncoding.DecodeString(c.CertificateChain)
	if err != nil {
		return "", fmt.Errorf("decode certificate chain: %s%w", err.Error(), model.ErrConfigurationFetchFailed)
	}
	return string(chain), nil
}

type Client struct {
	httpClient *http.Client
}

type ClientOption func(*Client)

func ClientWithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// FetchConfiguration performs a single GET against remoteURL. A non-2xx
// response fails with the status code attached.
func (c *Client) FetchConfiguration(ctx context.Context, remoteURL, bearerToken string) (Configuration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s%w", err.Error(), model.ErrConfigurationFetchFailed)
	}
	setBearerToken(req, bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s%w", err.Error(), model.ErrConfigurationFetchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Configuration{}, fmt.Errorf("configuration endpoint returned %d%w", resp.StatusCode, model.ErrConfigurationFetchFailed)
	}

	config := Configuration{}
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return Configuration{}, fmt.Errorf("%s%w", err.Error(), model.ErrConfigurationFetchFailed)
	}
	return config, nil
}

type enrollRequest struct {
	CSR string `json:"csr"`
}

type enrollResponse struct {
	CertificateID    string `json:"certificate_id"`
	CertificateChain string `json:"certificate_chain"`
	SerialNumber     string `json:"serial_number"`
	ExpiresAt        int64  `json:"expires_at"`
}

// EnrollHardwareKey creates a CSR for the key under alias in the key store,
// posts it to the CA enrollment endpoint and returns the issued PEM chain.
func (c *Client) EnrollHardwareKey(ctx context.Context, keyStore keystore.KeyStore, alias, remoteURL, bearerToken string) (string, error) {
	key, err := keyStore.Signer(alias)
	if err != nil {
		return "", fmt.Errorf("%s%w", err.Error(), model.ErrEnrollmentFailed)
	}

	csrPEM, err := eblpkix.CreateCertificateSigningRequest(key, nil, nil, nil, alias)
	if err != nil {
		return "", fmt.Errorf("create CSR: %s%w", err.Error(), model.ErrEnrollmentFailed)
	}

	body, err := json.Marshal(enrollRequest{CSR: string(csrPEM)})
	if err != nil {
		return "", fmt.Errorf("%s%w", err.Error(), model.ErrEnrollmentFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, remoteURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s%w", err.Error(), model.ErrEnrollmentFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	setBearerToken(req, bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s%w", err.Error(), model.ErrEnrollmentFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("enrollment endpoint returned %d%w", resp.StatusCode, model.ErrEnrollmentFailed)
	}

	enrolled := enrollResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&enrolled); err != nil {
		return "", fmt.Errorf("%s%w", err.Error(), model.ErrEnrollmentFailed)
	}
	if _, err := eblpkix.ParseCertificate([]byte(enrolled.CertificateChain)); err != nil {
		return "", fmt.Errorf("issued chain does not parse: %s%w", err.Error(), model.ErrEnrollmentFailed)
	}
	return enrolled.CertificateChain, nil
}

type remoteSignRequest struct {
	DataToSign string `json:"dataToSign"`
}

type remoteSignResponse struct {
	Signature string `json:"signature"`
}

// SignCallback returns the remote signing capability for a CallbackSigner:
// POST {"dataToSign": base64} to signingURL, parse {"signature": base64}.
func (c *Client) SignCallback(signingURL, bearerToken string) signer.SignCallback {
	return func(ctx context.Context, data []byte) ([]byte, error) {
		body, err := json.Marshal(remoteSignRequest{DataToSign: base64.StdEncoding.EncodeToString(data)})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, signingURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		setBearerToken(req, bearerToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("signing endpoint returned %d: %s", resp.StatusCode, string(body))
		}

		signResp := remoteSignResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&signResp); err != nil {
			return nil, err
		}
		signature, err := base64.StdEncoding.DecodeString(signResp.Signature)
		if err != nil {
			return nil, fmt.Errorf("decode signature: %w", err)
		}
		return signature, nil
	}
}

func setBearerToken(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
