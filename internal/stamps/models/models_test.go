package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"visitproof/internal/geo"
)

func TestNormalizeHolderID(t *testing.T) {
	assert.Equal(t,
		"0xabcdefabcdefabcdefabcdefabcdefabcdefabcd",
		NormalizeHolderID("  0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD "))
	assert.Equal(t, "0xHOLDER", NormalizeHolderID("0xHOLDER"))
}

func TestIsEVMAddress(t *testing.T) {
	assert.True(t, IsEVMAddress("0x1111111111111111111111111111111111111111"))
	assert.False(t, IsEVMAddress("0x111"))
	assert.False(t, IsEVMAddress("holder@example.com"))
}

func TestToCatalog_OmitsSecret(t *testing.T) {
	d := LocationDefinition{
		ID:          "L1",
		Title:       "Harbor",
		SecretHash:  "$2a$10$digest",
		Active:      true,
		TokenID:     3,
		Coordinates: &geo.Coordinates{Latitude: 1, Longitude: 2},
	}

	c := d.ToCatalog()

	assert.Equal(t, "L1", c.ID)
	assert.Equal(t, uint64(3), c.TokenID)
	assert.Equal(t, d.Coordinates, c.Coordinates)
}

func TestIssuedCredential_OnLedger(t *testing.T) {
	empty := ""
	tx := "0xabc"
	assert.False(t, IssuedCredential{}.OnLedger())
	assert.False(t, IssuedCredential{LedgerTxHash: &empty}.OnLedger())
	assert.True(t, IssuedCredential{LedgerTxHash: &tx}.OnLedger())
}
