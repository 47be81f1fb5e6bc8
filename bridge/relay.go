package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/errors"
)

// Default relay client settings, matching the relay's published contract.
const (
	DefaultRelayTimeout = 5 * time.Second
	maxRelayBody        = 1 << 20 // 1 MiB cap on relay responses
)

// CryptoOperation names a relay-side crypto utility.
type CryptoOperation string

// Supported crypto operations.
const (
	CryptoRandomHex CryptoOperation = "random_hex"
	CryptoSHA256    CryptoOperation = "sha256"
)

// cryptoRequest is the POST /crypto request body.
type cryptoRequest struct {
	Operation CryptoOperation `json:"operation"`
	Data      string          `json:"data,omitempty"`
	Length    int             `json:"length,omitempty"`
}

// cryptoResponse is the POST /crypto response envelope.
type cryptoResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Result string `json:"result"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// RelayClient talks to the external key-value relay: health check,
// plain-text key-value put/get, and the optional crypto utility.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRelayClient creates a client for the relay at baseURL. A zero timeout
// selects the contract default.
func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	return &RelayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the relay base URL.
func (c *RelayClient) BaseURL() string { return c.baseURL }

// Health issues GET /health. Any 200 response indicates reachability.
func (c *RelayClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.WrapConnection(err, "RelayClient", "Health", "request build")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapConnection(err, "RelayClient", "Health", "health check")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRelayBody))

	if resp.StatusCode != http.StatusOK {
		return errors.WrapConnection(
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
			"RelayClient", "Health", "health check")
	}
	return nil
}

// Get issues GET /data/{key} and returns the raw text body.
func (c *RelayClient) Get(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL(key), nil)
	if err != nil {
		return "", errors.WrapPoll(err, "RelayClient", "Get", "request build")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.WrapPoll(err, "RelayClient", "Get", "relay fetch")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBody))
	if err != nil {
		return "", errors.WrapPoll(err, "RelayClient", "Get", "body read")
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", errors.WrapPoll(errors.ErrKeyNotFound, "RelayClient", "Get", "relay fetch")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapPoll(
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
			"RelayClient", "Get", "relay fetch")
	}
	return string(body), nil
}

// Put issues POST /data/{key} with a text/plain body.
func (c *RelayClient) Put(ctx context.Context, key, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dataURL(key),
		strings.NewReader(body))
	if err != nil {
		return errors.WrapPoll(err, "RelayClient", "Put", "request build")
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapPoll(err, "RelayClient", "Put", "relay store")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRelayBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.WrapPoll(
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
			"RelayClient", "Put", "relay store")
	}
	return nil
}

// RandomHex asks the relay for length random hex characters.
func (c *RelayClient) RandomHex(ctx context.Context, length int) (string, error) {
	return c.crypto(ctx, cryptoRequest{Operation: CryptoRandomHex, Length: length})
}

// SHA256 asks the relay for the hex digest of data.
func (c *RelayClient) SHA256(ctx context.Context, data string) (string, error) {
	return c.crypto(ctx, cryptoRequest{Operation: CryptoSHA256, Data: data})
}

func (c *RelayClient) crypto(ctx context.Context, body cryptoRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.WrapPoll(err, "RelayClient", "crypto", "request marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crypto",
		bytes.NewReader(payload))
	if err != nil {
		return "", errors.WrapPoll(err, "RelayClient", "crypto", "request build")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.WrapPoll(err, "RelayClient", "crypto", "relay call")
	}
	defer resp.Body.Close()

	var envelope cryptoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRelayBody)).Decode(&envelope); err != nil {
		return "", errors.WrapDecode(err, "RelayClient", "crypto", "response decode")
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		reason := envelope.Error
		if reason == "" {
			reason = resp.Status
		}
		return "", errors.WrapPoll(
			fmt.Errorf("crypto %s rejected: %s", body.Operation, reason),
			"RelayClient", "crypto", "relay call")
	}
	return envelope.Data.Result, nil
}

func (c *RelayClient) dataURL(key string) string {
	return c.baseURL + "/data/" + key
}
