package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/fleetops/authz-core/internal/domain"
)

const (
	testIssuerURL = "https://issuer.test/pool"
	testAudience  = "console-client"
)

var (
	keyOnce   sync.Once
	keyPool   []*rsa.PrivateKey
	keyPoolMu sync.Mutex
)

// testKeys returns two RSA keys shared by all tests in the package.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		for i := 0; i < 2; i++ {
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			keyPool = append(keyPool, key)
		}
	})
	keyPoolMu.Lock()
	defer keyPoolMu.Unlock()
	return keyPool[0], keyPool[1]
}

type testIssuer struct {
	t       *testing.T
	server  *httptest.Server
	fetches atomic.Int32
	failing atomic.Bool

	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	primary, _ := testKeys(t)
	issuer := &testIssuer{t: t, keys: map[string]*rsa.PrivateKey{"kid-1": primary}}
	issuer.server = httptest.NewServer(http.HandlerFunc(issuer.serveJWKS))
	t.Cleanup(issuer.server.Close)
	return issuer
}

func (i *testIssuer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	i.fetches.Add(1)
	if i.failing.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	doc := jwksDocument{}
	for kid, key := range i.keys {
		doc.Keys = append(doc.Keys, jsonWebKey{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (i *testIssuer) publish(kid string, key *rsa.PrivateKey) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[kid] = key
}

func (i *testIssuer) url() string {
	return i.server.URL + "/jwks.json"
}

func (i *testIssuer) keySet(opts KeySetOptions) *KeySet {
	opts.URL = i.url()
	opts.HTTPClient = i.server.Client()
	return NewKeySet(opts, nil)
}

func (i *testIssuer) verifier() *TokenVerifier {
	return NewTokenVerifier(i.keySet(KeySetOptions{}), VerifierConfig{
		Issuer:   testIssuerURL,
		Audience: testAudience,
		TokenUse: domain.TokenUseID,
	})
}

func validClaims(role string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":         testIssuerURL,
		"aud":         testAudience,
		"sub":         "user-123",
		"email":       "ops@example.com",
		"custom:role": role,
		"token_use":   "id",
		"iat":         now.Add(-time.Minute).Unix(),
		"exp":         now.Add(time.Hour).Unix(),
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func assertKind(t *testing.T, err error, want domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil error", want)
	}
	if got := domain.KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}
