package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitproof/internal/geo"
	"visitproof/internal/stamps/models"
	"visitproof/internal/stamps/secrets"
	"visitproof/pkg/platform/sentinel"
)

// credentialStore is the full store surface both backends implement.
type credentialStore interface {
	FindActiveDefinition(ctx context.Context, locationID, secret string) (*models.LocationDefinition, error)
	FindExistingCredential(ctx context.Context, holderID, locationID string) (*models.IssuedCredential, error)
	InsertCredential(ctx context.Context, credential models.IssuedCredential) error
	ListActiveDefinitions(ctx context.Context) ([]models.LocationDefinition, error)
	ListDefinitions(ctx context.Context) ([]models.LocationDefinition, error)
	ListCredentialsByHolder(ctx context.Context, holderID string) ([]models.CollectionEntry, error)
	CollectedLocationIDs(ctx context.Context, holderID string, locationIDs []string) (map[string]bool, error)
	CreateDefinition(ctx context.Context, def models.LocationDefinition) error
	SetActive(ctx context.Context, locationID string, active bool) error
}

var (
	_ credentialStore = (*InMemoryStore)(nil)
	_ credentialStore = (*PostgresStore)(nil)
)

const (
	contractHolder = "0x1111111111111111111111111111111111111111"
	contractSecret = "abc123"
)

var contractDigest = func() string {
	d, err := secrets.Hash(contractSecret)
	if err != nil {
		panic(err)
	}
	return d
}()

func seedDefinitions(t *testing.T, st credentialStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	defs := []models.LocationDefinition{
		{ID: "L1", Title: "Harbor", TitleEn: "Harbor", TokenID: 1, Active: true, SecretHash: contractDigest,
			Coordinates: &geo.Coordinates{Latitude: 38.905, Longitude: 141.575}, ImageURL: "https://img/l1.png", CreatedAt: base},
		{ID: "L2", Title: "Shrine", TokenID: 2, Active: true, SecretHash: contractDigest, CreatedAt: base.Add(time.Hour)},
		{ID: "L3", Title: "Old market", TokenID: 3, Active: false, SecretHash: contractDigest, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, d := range defs {
		require.NoError(t, st.CreateDefinition(ctx, d))
	}
}

func newCredential(holderID, locationID string, tokenID uint64, at time.Time) models.IssuedCredential {
	return models.IssuedCredential{
		ID:          uuid.New(),
		HolderID:    holderID,
		LocationID:  locationID,
		TokenID:     tokenID,
		CollectedAt: at,
	}
}

// runStoreContract checks the behavior every CredentialStore backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) credentialStore) {
	ctx := context.Background()

	t.Run("find active definition matches id, secret and active flag", func(t *testing.T) {
		st := newStore(t)
		seedDefinitions(t, st)

		def, err := st.FindActiveDefinition(ctx, "L1", contractSecret)
		require.NoError(t, err)
		assert.Equal(t, "Harbor", def.Title)
		assert.Equal(t, uint64(1), def.TokenID)
		require.NotNil(t, def.Coordinates)
		assert.InDelta(t, 38.905, def.Coordinates.Latitude, 1e-9)

		def, err = st.FindActiveDefinition(ctx, "L2", contractSecret)
		require.NoError(t, err)
		assert.Nil(t, def.Coordinates)

		for _, tc := range []struct{ id, secret string }{
			{"L1", "wrong"},
			{"L3", contractSecret},
			{"L9", contractSecret},
			{"L1", ""},
		} {
			_, err := st.FindActiveDefinition(ctx, tc.id, tc.secret)
			assert.ErrorIs(t, err, sentinel.ErrNotFound, "%s/%s", tc.id, tc.secret)
		}
	})

	t.Run("insert then find existing credential", func(t *testing.T) {
		st := newStore(t)
		seedDefinitions(t, st)

		_, err := st.FindExistingCredential(ctx, contractHolder, "L1")
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		tx := "0xabc"
		block := uint64(42)
		lat, lon := 38.9051, 141.5751
		c := newCredential(contractHolder, "L1", 1, time.Now().UTC())
		c.LedgerTxHash = &tx
		c.LedgerBlockNumber = &block
		c.ObservedLatitude = &lat
		c.ObservedLongitude = &lon
		require.NoError(t, st.InsertCredential(ctx, c))

		got, err := st.FindExistingCredential(ctx, contractHolder, "L1")
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.True(t, got.OnLedger())
		assert.Equal(t, block, *got.LedgerBlockNumber)
		assert.InDelta(t, lat, *got.ObservedLatitude, 1e-9)
		assert.WithinDuration(t, c.CollectedAt, got.CollectedAt, time.Millisecond)
	})

	t.Run("duplicate holder and location is a conflict", func(t *testing.T) {
		st := newStore(t)
		seedDefinitions(t, st)

		require.NoError(t, st.InsertCredential(ctx, newCredential(contractHolder, "L1", 1, time.Now())))
		err := st.InsertCredential(ctx, newCredential(contractHolder, "L1", 1, time.Now()))
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		require.NoError(t, st.InsertCredential(ctx, newCredential(contractHolder, "L2", 2, time.Now())))
		require.NoError(t, st.InsertCredential(ctx, newCredential("0x2222222222222222222222222222222222222222", "L1", 1, time.Now())))
	})

	t.Run("concurrent inserts leave exactly one credential", func(t *testing.T) {
		st := newStore(t)
		seedDefinitions(t, st)

		const n = 16
		var wg sync.WaitGroup
		var ok, conflicts atomic.Int32
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := st.InsertCredential(ctx, newCredential(contractHolder, "L2", 2, time.Now()))
				switch {
				case err == nil:
					ok.Add(1)
				case assert.ErrorIs(t, err, sentinel.ErrConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), ok.Load())
		assert.Equal(t, int32(n-1), conflicts.Load())
		entries, err := st.ListCredentialsByHolder(ctx, contractHolder)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("listings", func(t *testing.T) {
		st := newStore(t)
		seedDefinitions(t, st)

		active, err := st.ListActiveDefinitions(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "L1", active[0].ID)
		assert.Equal(t, "L2", active[1].ID)

		all, err := st.ListDefinitions(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		older := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
		require.NoError(t, st.InsertCredential(ctx, newCredential(contractHolder, "L1", 1, older)))
		require.NoError(t, st.InsertCredential(ctx, newCredential(contractHolder, "L2", 2, older.Add(time.Hour))))

		entries, err := st.ListCredentialsByHolder(ctx, contractHolder)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "L2", entries[0].Credential.LocationID)
		assert.Equal(t, "Shrine", entries[0].LocationTitle)
		assert.Equal(t, "https://img/l1.png", entries[1].ImageURL)

		collected, err := st.CollectedLocationIDs(ctx, contractHolder, []string{"L1", "L3"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"L1": true}, collected)

		collected, err = st.CollectedLocationIDs(ctx, contractHolder, nil)
		require.NoError(t, err)
		assert.Empty(t, collected)
	})

	t.Run("create and deactivate definitions", func(t *testing.T) {
		st := newStore(t)
		seedDefinitions(t, st)

		err := st.CreateDefinition(ctx, models.LocationDefinition{ID: "L1", Title: "dup", SecretHash: contractDigest, Active: true, CreatedAt: time.Now()})
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		require.NoError(t, st.SetActive(ctx, "L1", false))
		_, err = st.FindActiveDefinition(ctx, "L1", contractSecret)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		require.NoError(t, st.SetActive(ctx, "L1", true))
		_, err = st.FindActiveDefinition(ctx, "L1", contractSecret)
		assert.NoError(t, err)

		assert.ErrorIs(t, st.SetActive(ctx, "L9", false), sentinel.ErrNotFound)
	})
}
