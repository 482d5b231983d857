package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) credentialStore {
		return NewInMemoryStore()
	})
}

func TestInMemoryStore_InsertRequiresKnownLocation(t *testing.T) {
	st := NewInMemoryStore()
	err := st.InsertCredential(context.Background(), newCredential(contractHolder, "L1", 1, time.Now()))
	assert.ErrorContains(t, err, "unknown location")
}
