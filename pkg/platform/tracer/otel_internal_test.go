package tracer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestToOTelAttributes(t *testing.T) {
	got := toOTelAttributes([]Attribute{
		Uint64(AttrTokenID, 7),
		Uint64("big", math.MaxUint64),
		Bool(AttrTestMode, true),
		{Key: "ignored", Value: struct{}{}},
	})

	require.Len(t, got, 3)
	assert.Equal(t, attribute.Int64(AttrTokenID, 7), got[0])
	assert.Equal(t, attribute.String("big", "18446744073709551615"), got[1])
	assert.Equal(t, attribute.Bool(AttrTestMode, true), got[2])
	assert.Nil(t, toOTelAttributes(nil))
}
