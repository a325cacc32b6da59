package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/id"
)

func TestActor_RoundTripThroughString(t *testing.T) {
	supplierID := id.New()

	for _, a := range []Actor{
		StaffActor("42"),
		SupplierActor(supplierID),
		SystemActor("payment-webhook"),
	} {
		parsed, err := ParseActor(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
}

func TestActor_Scan(t *testing.T) {
	var a Actor
	require.NoError(t, a.Scan([]byte("staff:7")))
	assert.Equal(t, StaffActor("7"), a)

	require.NoError(t, a.Scan(nil))
	assert.True(t, a.IsZero())

	assert.Error(t, a.Scan("robot:1"))
	assert.Error(t, a.Scan("staff"))
}
