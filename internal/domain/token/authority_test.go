package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
)

var testSecret = []byte("test-secret-test-secret-test-secret!")

func newTestAuthority(t *testing.T, now time.Time) *Authority {
	t.Helper()
	a, err := NewAuthority(testSecret)
	require.NoError(t, err)
	a.now = func() time.Time { return now }
	return a
}

func TestAuthority_IssueAndValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuthority(t, now)

	orderID, supplierID := id.New(), id.New()
	signed, err := a.Issue(orderID, supplierID, KindReorder, 7)
	require.NoError(t, err)

	claims, err := a.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, orderID, claims.OrderID)
	assert.Equal(t, supplierID, claims.CounterpartyID)
	assert.Equal(t, KindReorder, claims.Kind)
	assert.True(t, now.Add(7*24*time.Hour).Equal(claims.ExpiresAt))
}

func TestAuthority_Expired(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuthority(t, issuedAt)

	signed, err := a.Issue(id.New(), id.New(), KindPurchaseOrder, 1)
	require.NoError(t, err)

	a.now = func() time.Time { return issuedAt.Add(25 * time.Hour) }
	_, err = a.Validate(signed)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeTokenExpired))
}

func TestAuthority_RejectsForgedAndForeignTokens(t *testing.T) {
	now := time.Now()
	a := newTestAuthority(t, now)

	signed, err := a.Issue(id.New(), id.New(), KindPurchaseOrder, 3)
	require.NoError(t, err)

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(signed, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err := a.Validate(parts[0] + "." + parts[1] + "." + string(sig))
		assert.True(t, apperror.IsCode(err, apperror.CodeTokenInvalid))
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewAuthority([]byte("another-secret-another-secret-xyz"))
		require.NoError(t, err)
		_, err = other.Validate(signed)
		assert.True(t, apperror.IsCode(err, apperror.CodeTokenInvalid))
	})

	t.Run("staff token is not a capability", func(t *testing.T) {
		staff, err := NewStaffValidator(testSecret)
		require.NoError(t, err)
		staffToken, err := staff.Sign("u-1", "ops@example.com", nil, time.Hour)
		require.NoError(t, err)
		_, err = a.Validate(staffToken)
		assert.True(t, apperror.IsCode(err, apperror.CodeTokenInvalid))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := a.Validate("not-a-token")
		assert.True(t, apperror.IsCode(err, apperror.CodeTokenInvalid))
	})
}

func TestAuthority_IssueGuards(t *testing.T) {
	a := newTestAuthority(t, time.Now())

	_, err := a.Issue(id.New(), id.New(), Kind("invoice"), 7)
	assert.Error(t, err)

	_, err = a.Issue(id.New(), id.New(), KindReorder, 0)
	assert.Error(t, err)

	_, err = NewAuthority([]byte("short"))
	assert.Error(t, err)
}

func TestStaffValidator_RoundTrip(t *testing.T) {
	v, err := NewStaffValidator(testSecret)
	require.NoError(t, err)

	signed, err := v.Sign("u-42", "clerk@example.com", []string{"clerk"}, time.Hour)
	require.NoError(t, err)

	user, err := v.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u-42", user.UserID)
	assert.Equal(t, []string{"clerk"}, user.Roles)
}
