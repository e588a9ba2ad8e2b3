// Package txverifier lets downstream services verify RS256 tokens minted by
// txauth without calling back into it. Keys come from the service's JWKS
// endpoint and are cached by kid.
package txverifier

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrKidNotFound    = errors.New("kid not found in JWKS")
	ErrNoKeysFound    = errors.New("no keys found in JWKS response")
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("unexpected token type")
)

// Option configures a Verifier.
type Option func(*Verifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithLeeway tolerates clock skew on exp.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

// Verifier is a thread-safe JWKS client and token verifier.
type Verifier struct {
	jwksURL    string
	issuer     string
	leeway     time.Duration
	httpClient *http.Client

	mu       sync.RWMutex
	keys     map[string]*rsa.PublicKey
	lastETag string
}

// New creates a Verifier reading keys from jwksURL, typically
// https://<host>/.well-known/jwks.json.
func New(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL:    jwksURL,
		keys:       make(map[string]*rsa.PublicKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refresh fetches the key set. A 304 keeps the cached keys.
func (v *Verifier) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	v.mu.RLock()
	if v.lastETag != "" {
		req.Header.Set("If-None-Match", v.lastETag)
	}
	v.mu.RUnlock()

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch JWKS: status code %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, key := range set.Keys {
		if key.Algorithm != string(jose.RS256) {
			continue
		}
		if pub, ok := key.Key.(*rsa.PublicKey); ok {
			keys[key.KeyID] = pub
		}
	}
	if len(keys) == 0 {
		return ErrNoKeysFound
	}

	v.mu.Lock()
	v.keys = keys
	v.lastETag = resp.Header.Get("ETag")
	v.mu.Unlock()
	return nil
}

func (v *Verifier) key(kid string) (*rsa.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	k, ok := v.keys[kid]
	return k, ok
}

// Verify checks the signature, expiry and (when configured) issuer of token
// and returns its claims. An unknown kid triggers one key set refresh.
func (v *Verifier) Verify(ctx context.Context, token string) (jwt.MapClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, ErrKidNotFound
	}

	pub, found := v.key(kid)
	if !found {
		if err := v.Refresh(ctx); err != nil {
			return nil, err
		}
		if pub, found = v.key(kid); !found {
			return nil, ErrKidNotFound
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// VerifyType is Verify plus a check of the txauth "type" claim.
func (v *Verifier) VerifyType(ctx context.Context, token, tokenType string) (jwt.MapClaims, error) {
	claims, err := v.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if got, _ := claims["type"].(string); got != tokenType {
		return nil, fmt.Errorf("%w: want %s, got %q", ErrWrongTokenType, tokenType, got)
	}
	return claims, nil
}
