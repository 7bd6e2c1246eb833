package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmesh/memorymesh/internal/errs"
	"github.com/mmesh/memorymesh/internal/observability"
)

// HTTPConfig configures an HTTPEmbedder. AuthMode selects the request shape:
// "ollama" sends {model, prompt} and reads {embedding}; anything else (the
// default, "openai") sends {model, input} and reads {data:[{embedding}]},
// matching the teacher's two HTTP providers generalised into one client.
type HTTPConfig struct {
	BaseURL  string
	Model    string
	APIKey   string
	AuthMode string
	Dims     int
	Timeout  time.Duration
	Logger   *slog.Logger // nil -> observability.Default()
}

// HTTPEmbedder calls a remote embedding API over HTTP, generalising
// rcliao-agent-memory's OllamaEmbedder and OpenAIEmbedder into one client
// shaped by AuthMode.
type HTTPEmbedder struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPEmbedder validates cfg and returns a ready HTTPEmbedder. It rejects
// base URLs that resolve to link-local or cloud-metadata address ranges, and
// warns (without failing) when a non-localhost endpoint is plain HTTP.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Dims == 0 {
		cfg.Dims = 768
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := checkEndpointSafety(cfg.BaseURL); err != nil {
		return nil, err
	}
	warnIfInsecure(cfg.BaseURL, cfg.Logger)

	return &HTTPEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// checkEndpointSafety rejects link-local and cloud-metadata ranges outright
// (these only ever serve instance-credential data, never an embedding API a
// caller legitimately configured) and allows plain HTTP everywhere else —
// callers pointing at a local dev server over HTTP is the common case.
func checkEndpointSafety(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid embedding endpoint URL", errs.V("url", rawURL), errs.V("cause", err.Error()))
	}
	host := u.Hostname()
	if host == "" {
		return errs.Wrap(errs.InvalidArgument, "embedding endpoint URL has no host", errs.V("url", rawURL))
	}

	ip := net.ParseIP(host)
	if ip != nil && isBlockedIP(ip) {
		return errs.Wrap(errs.InvalidArgument, "embedding endpoint resolves to a link-local or metadata address",
			errs.V("url", rawURL))
	}
	return nil
}

// warnIfInsecure logs a single WARN when rawURL is plain HTTP and its host
// isn't loopback — credentials and embedded text would cross the network
// unencrypted. Malformed URLs are already rejected by checkEndpointSafety
// before this runs, so errors here are ignored.
func warnIfInsecure(rawURL string, logger *slog.Logger) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "http" {
		return
	}
	if isLoopbackHost(u.Hostname()) {
		return
	}
	logger.Warn("embedding endpoint uses plain HTTP to a non-localhost host",
		slog.String("url", rawURL))
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	// 169.254.0.0/16 covers the common cloud-metadata address
	// (169.254.169.254); IsLinkLocalUnicast already matches this, but the
	// explicit check documents intent.
	if v4 := ip.To4(); v4 != nil && v4[0] == 169 && v4[1] == 254 {
		return true
	}
	return false
}

func (e *HTTPEmbedder) Dims() int { return e.cfg.Dims }

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) (Vector, bool, error) {
	var body []byte
	var err error
	var endpoint string

	if e.cfg.AuthMode == "ollama" {
		endpoint = e.cfg.BaseURL + "/api/embeddings"
		body, err = json.Marshal(struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}{Model: e.cfg.Model, Prompt: text})
	} else {
		endpoint = e.cfg.BaseURL + "/embeddings"
		body, err = json.Marshal(struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}{Input: text, Model: e.cfg.Model})
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.IoError, "encode embedding request", errs.V("cause", err.Error()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, errs.Wrap(errs.IoError, "build embedding request", errs.V("cause", err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		// Unreachable provider degrades to "unavailable", not a hard error:
		// callers fall back to keyword search rather than failing the call.
		return nil, false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Non-2xx degrades to "unavailable", same as a transport failure:
		// callers fall back to keyword search rather than failing the call.
		return nil, false, nil
	}

	if e.cfg.AuthMode == "ollama" {
		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, false, errs.Wrap(errs.IoError, "decode embedding response", errs.V("cause", err.Error()))
		}
		if len(result.Embedding) == 0 {
			return nil, false, nil
		}
		return result.Embedding, true, nil
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, errs.Wrap(errs.IoError, "decode embedding response", errs.V("cause", err.Error()))
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, false, nil
	}
	return result.Data[0].Embedding, true, nil
}
