package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

func TestClaimsContext_NotInitialized(t *testing.T) {
	cc := service.NewClaimsContext()
	assert.False(t, cc.IsInitialized())

	accessors := map[string]func() error{
		"Claims":    func() error { _, err := cc.Claims(); return err },
		"Subject":   func() error { _, err := cc.Subject(); return err },
		"Role":      func() error { _, err := cc.Role(); return err },
		"TokenType": func() error { _, err := cc.TokenType(); return err },
		"TokenID":   func() error { _, err := cc.TokenID(); return err },
		"Audience":  func() error { _, err := cc.Audience(); return err },
		"String":    func() error { _, err := cc.String("owner"); return err },
		"Get":       func() error { _, _, err := cc.Get("owner"); return err },
	}
	for name, call := range accessors {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(call(), errors.ErrClaimsNotInitialized))
		})
	}
}

func TestClaimsContext_SubjectMissing(t *testing.T) {
	cc := service.NewClaimsContext()
	require.NoError(t, cc.SetClaims(models.Claims{constants.ClaimRole: "User"}))
	assert.True(t, cc.IsInitialized())

	_, err := cc.Role()
	assert.True(t, errors.Is(err, errors.ErrSubjectMissing))
	_, err = cc.Subject()
	assert.True(t, errors.Is(err, errors.ErrSubjectMissing))
}

func TestClaimsContext_Accessors(t *testing.T) {
	in := models.Claims{
		constants.ClaimSubject:  "svc-42",
		constants.ClaimRole:     "Service",
		constants.ClaimType:     "tx-users",
		constants.ClaimTokenID:  "id-1",
		constants.ClaimAudience: "internal",
		constants.ClaimOwner:    "team-x",
	}
	cc := service.NewClaimsContext()
	require.NoError(t, cc.SetClaims(in))

	sub, err := cc.Subject()
	require.NoError(t, err)
	assert.Equal(t, "svc-42", sub)

	role, err := cc.Role()
	require.NoError(t, err)
	assert.Equal(t, constants.RoleService, role)

	typ, err := cc.TokenType()
	require.NoError(t, err)
	assert.Equal(t, constants.TokenTypeTxUsers, typ)

	owner, err := cc.String(constants.ClaimOwner)
	require.NoError(t, err)
	assert.Equal(t, "team-x", owner)

	_, ok, err := cc.Get("absent")
	require.NoError(t, err)
	assert.False(t, ok)

	// Mutating the caller's map or a returned copy does not leak in.
	in[constants.ClaimSubject] = "mallory"
	all, err := cc.Claims()
	require.NoError(t, err)
	all[constants.ClaimSubject] = "eve"
	sub, _ = cc.Subject()
	assert.Equal(t, "svc-42", sub)
}

func TestClaimsContext_SetOnce(t *testing.T) {
	cc := service.NewClaimsContext()
	assert.True(t, errors.Is(cc.SetClaims(nil), errors.ErrInvalidArgument))
	assert.False(t, cc.IsInitialized())

	require.NoError(t, cc.SetClaims(models.Claims{constants.ClaimSubject: "a"}))
	err := cc.SetClaims(models.Claims{constants.ClaimSubject: "b"})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	sub, _ := cc.Subject()
	assert.Equal(t, "a", sub)
}

func TestClaimsContext_ConcurrentSetOnlyOneWins(t *testing.T) {
	cc := service.NewClaimsContext()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cc.SetClaims(models.Claims{constants.ClaimSubject: "x"}) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestClaimsContext_CarriedByContext(t *testing.T) {
	_, ok := service.ClaimsContextFrom(context.Background())
	assert.False(t, ok)

	cc := service.NewClaimsContext()
	ctx := service.WithClaimsContext(context.Background(), cc)
	got, ok := service.ClaimsContextFrom(ctx)
	require.True(t, ok)
	assert.Same(t, cc, got)
}
