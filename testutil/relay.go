// Package testutil provides in-process test doubles for the external
// collaborators of the hub: the key-value relay and an MQTT broker.
package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RelayServer is an in-memory implementation of the external relay's HTTP
// contract: GET /health, GET/POST /data/{key}, POST /crypto.
type RelayServer struct {
	*httptest.Server

	mu      sync.RWMutex
	data    map[string]string
	healthy bool
	gets    int
}

// NewRelayServer starts a relay double and registers cleanup with t.
func NewRelayServer(t *testing.T) *RelayServer {
	t.Helper()

	rs := &RelayServer{
		data:    make(map[string]string),
		healthy: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", rs.handleHealth)
	mux.HandleFunc("/data/", rs.handleData)
	mux.HandleFunc("/crypto", rs.handleCrypto)

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

// Seed stores a value under key without going through HTTP.
func (rs *RelayServer) Seed(key, value string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.data[key] = value
}

// SetHealthy controls whether /health reports 200 or 503.
func (rs *RelayServer) SetHealthy(healthy bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.healthy = healthy
}

// GetCount reports how many GET /data requests the relay has served.
func (rs *RelayServer) GetCount() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.gets
}

func (rs *RelayServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rs.mu.RLock()
	healthy := rs.healthy
	rs.mu.RUnlock()

	if !healthy {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (rs *RelayServer) handleData(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/data/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rs.mu.Lock()
		rs.gets++
		value, ok := rs.data[key]
		rs.mu.Unlock()
		if !ok {
			http.Error(w, "key not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(value))

	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "body read failed", http.StatusBadRequest)
			return
		}
		rs.mu.Lock()
		rs.data[key] = string(body)
		rs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"key":     key,
			"bytes":   len(body),
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rs *RelayServer) handleCrypto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Operation string `json:"operation"`
		Data      string `json:"data"`
		Length    int    `json:"length"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCryptoError(w, "invalid request body")
		return
	}

	var result string
	switch req.Operation {
	case "random_hex":
		if req.Length <= 0 || req.Length > 1024 {
			writeCryptoError(w, "length out of range")
			return
		}
		buf := make([]byte, (req.Length+1)/2)
		if _, err := rand.Read(buf); err != nil {
			writeCryptoError(w, "entropy unavailable")
			return
		}
		result = hex.EncodeToString(buf)[:req.Length]
	case "sha256":
		sum := sha256.Sum256([]byte(req.Data))
		result = hex.EncodeToString(sum[:])
	default:
		writeCryptoError(w, "unsupported operation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    map[string]string{"result": result},
	})
}

func writeCryptoError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}
