package service

import (
	"context"
	"sync"

	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

// ClaimsContext holds the claims of the tx-class token validated for the
// current request. It is set once, by the validator, and read by handlers.
// One instance per request; never share it across requests.
type ClaimsContext struct {
	mu          sync.RWMutex
	claims      models.Claims
	initialized bool
}

// NewClaimsContext returns an empty, uninitialized context.
func NewClaimsContext() *ClaimsContext {
	return &ClaimsContext{}
}

// SetClaims stores claims. It may be called once.
func (c *ClaimsContext) SetClaims(claims models.Claims) error {
	if claims == nil {
		return errors.NewInvalidArgumentError("claims must not be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return errors.NewInvalidArgumentError("claims context is already initialized")
	}
	c.claims = claims.Clone()
	c.initialized = true
	return nil
}

// IsInitialized reports whether SetClaims has succeeded.
func (c *ClaimsContext) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// read returns the claims after checking both invariants.
func (c *ClaimsContext) read() (models.Claims, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, errors.NewClaimsNotInitializedError()
	}
	if c.claims.Subject() == "" {
		return nil, errors.NewSubjectMissingError(nil)
	}
	return c.claims, nil
}

// Claims returns a copy of the full claim set.
func (c *ClaimsContext) Claims() (models.Claims, error) {
	claims, err := c.read()
	if err != nil {
		return nil, err
	}
	return claims.Clone(), nil
}

func (c *ClaimsContext) Subject() (string, error) {
	return c.String(constants.ClaimSubject)
}

func (c *ClaimsContext) Role() (constants.Role, error) {
	s, err := c.String(constants.ClaimRole)
	return constants.Role(s), err
}

func (c *ClaimsContext) TokenType() (constants.TokenType, error) {
	s, err := c.String(constants.ClaimType)
	return constants.TokenType(s), err
}

func (c *ClaimsContext) TokenID() (string, error) {
	return c.String(constants.ClaimTokenID)
}

func (c *ClaimsContext) Audience() (string, error) {
	return c.String(constants.ClaimAudience)
}

// String returns a string claim, or "" when the claim is absent.
func (c *ClaimsContext) String(name string) (string, error) {
	claims, err := c.read()
	if err != nil {
		return "", err
	}
	return claims.String(name), nil
}

// Get returns the raw claim value and whether it is present.
func (c *ClaimsContext) Get(name string) (interface{}, bool, error) {
	claims, err := c.read()
	if err != nil {
		return nil, false, err
	}
	v, ok := claims[name]
	return v, ok, nil
}

type claimsContextKey struct{}

// WithClaimsContext returns a copy of ctx carrying cc.
func WithClaimsContext(ctx context.Context, cc *ClaimsContext) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, cc)
}

// ClaimsContextFrom returns the ClaimsContext carried by ctx.
func ClaimsContextFrom(ctx context.Context) (*ClaimsContext, bool) {
	cc, ok := ctx.Value(claimsContextKey{}).(*ClaimsContext)
	return cc, ok && cc != nil
}
