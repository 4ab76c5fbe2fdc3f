package apns

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/fieldpulse/liveactivity/internal/platform/resilience"
	"github.com/valyala/bytebufferpool"
)

const (
	hostProduction = "https://api.push.apple.com"
	hostSandbox    = "https://api.sandbox.push.apple.com"

	// provider tokens are valid for 60 minutes; refresh ahead of that.
	tokenLifetime = 50 * time.Minute
)

// Kind selects the live-activity push variant and its routing token.
type Kind string

const (
	KindStart  Kind = "start"
	KindUpdate Kind = "update"
	KindEnd    Kind = "end"
)

// Result mirrors the APNs response: a 200 means delivered, anything else
// carries the reason string from the response body.
type Result struct {
	Successful  bool
	Description string
}

var errAPNSTransient = crerr.New("apns transient failure")

type Config struct {
	KeyPath    string
	KeyPEM     []byte
	KeyID      string
	TeamID     string
	Topic      string
	UseSandbox bool
	Timeout    time.Duration

	HTTPClient     *http.Client
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client sends live-activity pushes over the APNs HTTP/2 provider API with
// an ES256 provider token.
type Client struct {
	cfg            Config
	host           string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool

	mu         sync.Mutex
	httpClient *http.Client
	signingKey *ecdsa.PrivateKey
	token      string
	tokenAt    time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.TeamID) == "" || strings.TrimSpace(cfg.Topic) == "" {
		return nil, crerr.New("apns key id, team id and topic are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	key, err := loadSigningKey(cfg)
	if err != nil {
		return nil, err
	}

	host := hostProduction
	if cfg.UseSandbox {
		host = hostSandbox
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	client := &Client{
		cfg:            cfg,
		host:           host,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
		signingKey:     key,
	}
	client.httpClient = client.newHTTPClient()
	return client, nil
}

// Send delivers one push to the device token. A non-nil error means the
// request never got a usable APNs response; Result.Successful reports what
// APNs said.
func (c *Client) Send(ctx context.Context, deviceToken string, payload []byte, kind Kind) (Result, error) {
	if strings.TrimSpace(deviceToken) == "" {
		return Result{}, crerr.New("device token is required")
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "apns circuit breaker rejected push", "kind", string(kind), "state", c.breaker.State())
			return Result{}, fmt.Errorf("apns is temporarily unavailable: %w", err)
		}
	}

	result, err := c.send(ctx, deviceToken, payload, kind)
	c.recordCircuitResult(err)
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Reinitialize drops the HTTP/2 connection pool and the cached provider
// token so the next send starts from a fresh channel.
func (c *Client) Reinitialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	c.httpClient = c.newHTTPClient()
	c.token = ""
	c.tokenAt = time.Time{}

	c.logger.Info("apns channel reinitialized")
	return nil
}

func (c *Client) send(ctx context.Context, deviceToken string, payload []byte, kind Kind) (Result, error) {
	providerToken, err := c.providerToken()
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	httpClient := c.httpClient
	c.mu.Unlock()

	url := c.host + "/3/device/" + deviceToken
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return Result{}, crerr.Wrap(err, "create apns request")
	}

	topic := c.cfg.Topic
	if !strings.HasSuffix(topic, ".push-type.liveactivity") {
		topic += ".push-type.liveactivity"
	}
	req.Header.Set("Authorization", "bearer "+providerToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apns-push-type", "liveactivity")
	req.Header.Set("apns-topic", topic)
	req.Header.Set("apns-priority", "10")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: send %s push: %v", errAPNSTransient, kind, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusOK {
		return Result{Successful: true}, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, fmt.Errorf("%w: apns status=%d reason=%s", errAPNSTransient, resp.StatusCode, reasonFromBody(body))
	}

	reason := reasonFromBody(body)
	c.logger.WarnContext(ctx, "apns rejected push",
		"kind", string(kind),
		"status", resp.StatusCode,
		"reason", reason,
		"payload_preview", payloadPreview(payload),
	)
	return Result{Successful: false, Description: reason}, nil
}

func (c *Client) providerToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenAt) < tokenLifetime {
		return c.token, nil
	}

	token, err := signProviderToken(c.signingKey, c.cfg.KeyID, c.cfg.TeamID, time.Now())
	if err != nil {
		return "", err
	}

	c.token = token
	c.tokenAt = time.Now()
	return token, nil
}

func (c *Client) newHTTPClient() *http.Client {
	if c.cfg.HTTPClient != nil {
		return c.cfg.HTTPClient
	}
	return &http.Client{
		Timeout: c.cfg.Timeout,
		Transport: &http.Transport{
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func (c *Client) recordCircuitResult(err error) {
	if !c.circuitEnabled || c.breaker == nil {
		return
	}
	if err != nil && stderrors.Is(err, errAPNSTransient) {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

func loadSigningKey(cfg Config) (*ecdsa.PrivateKey, error) {
	pemBytes := cfg.KeyPEM
	if len(pemBytes) == 0 {
		if strings.TrimSpace(cfg.KeyPath) == "" {
			return nil, crerr.New("apns signing key is required (path or pem)")
		}
		raw, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, crerr.Wrapf(err, "read apns key %s", cfg.KeyPath)
		}
		pemBytes = raw
	}
	return parseECPrivateKey(pemBytes)
}

func parseECPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block := extractPEMBlock(pemBytes)
	if block == nil {
		return nil, crerr.New("apns key is not valid PEM")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block)
	if err != nil {
		if ecKey, ecErr := x509.ParseECPrivateKey(block); ecErr == nil {
			return ecKey, nil
		}
		return nil, crerr.Wrap(err, "parse apns key")
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, crerr.New("apns key is not an EC key")
	}
	return key, nil
}

func extractPEMBlock(pemBytes []byte) []byte {
	text := string(pemBytes)
	start := strings.Index(text, "-----BEGIN")
	if start < 0 {
		return nil
	}
	headerEnd := strings.Index(text[start:], "\n")
	if headerEnd < 0 {
		return nil
	}
	bodyStart := start + headerEnd + 1
	end := strings.Index(text[bodyStart:], "-----END")
	if end < 0 {
		return nil
	}

	b64 := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, text[bodyStart:bodyStart+end])

	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return der
}

func signProviderToken(key *ecdsa.PrivateKey, keyID, teamID string, issuedAt time.Time) (string, error) {
	header, err := sonic.Marshal(map[string]string{"alg": "ES256", "kid": keyID})
	if err != nil {
		return "", crerr.Wrap(err, "encode apns token header")
	}
	claims, err := sonic.Marshal(map[string]any{"iss": teamID, "iat": issuedAt.Unix()})
	if err != nil {
		return "", crerr.Wrap(err, "encode apns token claims")
	}

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(claims)
	digest := sha256.Sum256([]byte(signingInput))

	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", crerr.Wrap(err, "sign apns token")
	}

	// JOSE wants the raw fixed-width r||s concatenation, not ASN.1.
	keyBytes := (key.Curve.Params().BitSize + 7) / 8
	signature := make([]byte, 2*keyBytes)
	fillBigInt(signature[:keyBytes], r)
	fillBigInt(signature[keyBytes:], s)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

func fillBigInt(dst []byte, v *big.Int) {
	raw := v.Bytes()
	copy(dst[len(dst)-len(raw):], raw)
}

func reasonFromBody(body []byte) string {
	var envelope struct {
		Reason string `json:"reason"`
	}
	if err := sonic.Unmarshal(body, &envelope); err == nil && envelope.Reason != "" {
		return envelope.Reason
	}
	return strings.TrimSpace(string(body))
}

func payloadPreview(payload []byte) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	const limit = 256
	if len(payload) > limit {
		_, _ = buf.Write(payload[:limit])
		_, _ = buf.WriteString("...")
	} else {
		_, _ = buf.Write(payload)
	}
	return buf.String()
}
