package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrKeySetUnavailable marks failures to obtain signing keys from the issuer.
	ErrKeySetUnavailable = errors.New("signing key set unavailable")
	// ErrUnknownKey is returned when no published key matches the token's kid.
	ErrUnknownKey = errors.New("signing key not found")
)

const (
	defaultKeyCacheTTL        = 10 * time.Minute
	defaultRefreshMinInterval = 30 * time.Second
	defaultKeyFetchTimeout    = 3 * time.Second
	maxJWKSBodyBytes          = 1 << 20
)

// KeySetOptions configures a KeySet.
type KeySetOptions struct {
	URL                string
	HTTPClient         *http.Client
	TTL                time.Duration
	MinRefreshInterval time.Duration
	FetchTimeout       time.Duration
	Now                func() time.Time
}

// KeySet caches an issuer's published JWKS. It is safe for concurrent use.
type KeySet struct {
	url                string
	client             *http.Client
	ttl                time.Duration
	minRefreshInterval time.Duration
	fetchTimeout       time.Duration
	now                func() time.Time
	logger             *zap.Logger

	mu          sync.RWMutex
	keys        map[string]crypto.PublicKey
	expiresAt   time.Time
	lastAttempt time.Time

	group singleflight.Group
}

type jwksDocument struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// NewKeySet builds a key set for the given JWKS endpoint.
func NewKeySet(opts KeySetOptions, logger *zap.Logger) *KeySet {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultKeyCacheTTL
	}
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = defaultRefreshMinInterval
	}
	if opts.MinRefreshInterval > opts.TTL {
		opts.MinRefreshInterval = opts.TTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultKeyFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeySet{
		url:                opts.URL,
		client:             opts.HTTPClient,
		ttl:                opts.TTL,
		minRefreshInterval: opts.MinRefreshInterval,
		fetchTimeout:       opts.FetchTimeout,
		now:                opts.Now,
		logger:             logger,
		keys:               map[string]crypto.PublicKey{},
	}
}

// Key returns the public key published under kid, fetching the key set when
// the cache is empty, expired, or does not know kid yet.
func (k *KeySet) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, ErrUnknownKey
	}

	if key, found, fresh := k.lookup(kid); found && fresh {
		return key, nil
	}

	if _, err := k.refresh(ctx); err != nil {
		return nil, err
	}

	key, found, fresh := k.lookup(kid)
	switch {
	case found:
		return key, nil
	case fresh:
		return nil, ErrUnknownKey
	default:
		// expired and the last fetch attempt was too recent to retry
		return nil, ErrKeySetUnavailable
	}
}

// ForceRefresh refetches the key set unless a fetch was attempted within the
// minimum refresh interval. It reports whether a fetch happened.
func (k *KeySet) ForceRefresh(ctx context.Context) (bool, error) {
	return k.refresh(ctx)
}

// Ready reports whether a usable, unexpired key set is cached.
func (k *KeySet) Ready() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0 && k.now().Before(k.expiresAt)
}

func (k *KeySet) lookup(kid string) (crypto.PublicKey, bool, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	fresh := len(k.keys) > 0 && k.now().Before(k.expiresAt)
	if !fresh {
		return nil, false, false
	}
	key, ok := k.keys[kid]
	return key, ok, true
}

// refresh fetches the key set at most once per minRefreshInterval. Concurrent
// callers share one in-flight fetch, which is detached from the first caller's
// cancellation.
func (k *KeySet) refresh(ctx context.Context) (bool, error) {
	fetched, err, _ := k.group.Do(k.url, func() (interface{}, error) {
		k.mu.Lock()
		now := k.now()
		if !k.lastAttempt.IsZero() && now.Sub(k.lastAttempt) < k.minRefreshInterval {
			k.mu.Unlock()
			return false, nil
		}
		k.lastAttempt = now
		k.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.fetchTimeout)
		defer cancel()

		keys, err := k.fetch(fetchCtx)
		if err != nil {
			k.logger.Error("jwks fetch failed", zap.String("url", k.url), zap.Error(err))
			return false, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
		}

		k.mu.Lock()
		k.keys = keys
		k.expiresAt = k.now().Add(k.ttl)
		k.mu.Unlock()
		k.logger.Info("jwks refreshed", zap.String("url", k.url), zap.Int("keys", len(keys)))
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return fetched.(bool), nil
}

func (k *KeySet) fetch(ctx context.Context) (map[string]crypto.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBodyBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kid == "" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := jwk.publicKey()
		if err != nil {
			k.logger.Warn("skipping unusable jwk", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable keys")
	}
	return keys, nil
}

func (j jsonWebKey) publicKey() (crypto.PublicKey, error) {
	switch j.Kty {
	case "RSA":
		return j.rsaPublicKey()
	case "EC":
		return j.ecPublicKey()
	default:
		return nil, fmt.Errorf("unsupported key type %q", j.Kty)
	}
}

func (j jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	if j.N == "" || j.E == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, err
	}
	if len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid rsa exponent")
	}
	e := new(big.Int).SetBytes(eBytes).Int64()
	if e <= 1 || e > int64(^uint32(0)>>1) {
		return nil, errors.New("invalid rsa exponent")
	}
	n := new(big.Int).SetBytes(nBytes)
	if n.BitLen() < 2048 {
		return nil, errors.New("rsa modulus too small")
	}
	return &rsa.PublicKey{N: n, E: int(e)}, nil
}

func (j jsonWebKey) ecPublicKey() (*ecdsa.PublicKey, error) {
	if j.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve %q", j.Crv)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, err
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return nil, err
	}
	curve := elliptic.P256()
	x := new(big.Int).SetBytes(xBytes)
	y := new(big.Int).SetBytes(yBytes)
	if !curve.IsOnCurve(x, y) {
		return nil, errors.New("ec point not on curve")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}
