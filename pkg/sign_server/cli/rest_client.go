package cli

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cert_authority"
)

// RestClient is the CLI side client of a running sign server. Unlike the core
// remote package it retries transient failures with backoff.
type RestClient struct {
	serverURL   string
	bearerToken string
	httpClient  *http.Client
}

func NewRestClient(serverURL, bearerToken string) *RestClient {
	return &RestClient{
		serverURL:   serverURL,
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type IssuedCertResponse struct {
	CertificateID    string `json:"certificate_id"`
	CertificateChain string `json:"certificate_chain"`
	PrivateKey       string `json:"private_key,omitempty"`
	SerialNumber     string `json:"serial_number"`
	ExpiresAt        int64  `json:"expires_at"`
}

type ConfigurationResponse struct {
	Algorithm        string `json:"algorithm"`
	TimestampURL     string `json:"timestamp_url"`
	SigningURL       string `json:"signing_url"`
	CertificateChain string `json:"certificate_chain"`
}

func (c *RestClient) SignCSR(csrPEM, requester string, metadata *cert_authority.CertMetadata) (IssuedCertResponse, error) {
	req := cert_authority.SignCSRRequest{
		Requester: requester,
		CSR:       csrPEM,
		Metadata:  metadata,
	}
	result := IssuedCertResponse{}
	err := c.post("/api/v1/certificates/sign", req, &result)
	return result, err
}

func (c *RestClient) IssueTemporaryCert() (IssuedCertResponse, error) {
	result := IssuedCertResponse{}
	err := c.post("/api/v1/certificates/temporary", nil, &result)
	return result, err
}

func (c *RestClient) GetConfiguration() (ConfigurationResponse, error) {
	result := ConfigurationResponse{}
	err := c.get("/api/v1/c2pa/configuration", &result)
	return result, err
}

// SignAsset posts an asset for manifest embedding and returns the signed bytes.
func (c *RestClient) SignAsset(manifestJSON, format string, asset []byte, verify bool) ([]byte, error) {
	request := struct {
		ManifestJSON string `json:"manifestJSON"`
		Format       string `json:"format"`
		ImageData    string `json:"imageData"`
		Verify       bool   `json:"verify,omitempty"`
	}{
		ManifestJSON: manifestJSON,
		Format:       format,
		ImageData:    base64.StdEncoding.EncodeToString(asset),
		Verify:       verify,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	var signedAsset []byte
	err = retry.Do(
		func() error {
			req, err := http.NewRequest(http.MethodPost, c.serverURL+"/api/v1/c2pa/sign", bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if c.bearerToken != "" {
				req.Header.Set("Authorization", "Bearer "+c.bearerToken)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode/100 != 2 {
				respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				err := fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
				if resp.StatusCode/100 == 4 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			signedAsset, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return signedAsset, nil
}

func (c *RestClient) post(path string, request any, response any) error {
	var body []byte
	if request != nil {
		var err error
		body, err = json.Marshal(request)
		if err != nil {
			return err
		}
	}

	return c.doWithRetry(func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.serverURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, response)
}

func (c *RestClient) get(path string, response any) error {
	return c.doWithRetry(func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.serverURL+path, nil)
	}, response)
}

func (c *RestClient) doWithRetry(newRequest func() (*http.Request, error), response any) error {
	return retry.Do(
		func() error {
			req, err := newRequest()
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if c.bearerToken != "" {
				req.Header.Set("Authorization", "Bearer "+c.bearerToken)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode/100 != 2 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				err := fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
				if resp.StatusCode/100 == 4 {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if response == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(response)
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
