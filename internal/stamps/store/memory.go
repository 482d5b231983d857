package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"visitproof/internal/stamps/models"
	"visitproof/internal/stamps/secrets"
	"visitproof/pkg/platform/sentinel"
)

type credentialKey struct {
	holderID   string
	locationID string
}

// InMemoryStore keeps definitions and credentials in maps. The (holder,
// location) uniqueness is enforced under the write lock so it behaves like the
// Postgres unique constraint under concurrent inserts.
type InMemoryStore struct {
	mu          sync.RWMutex
	definitions map[string]models.LocationDefinition
	credentials map[credentialKey]models.IssuedCredential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		definitions: make(map[string]models.LocationDefinition),
		credentials: make(map[credentialKey]models.IssuedCredential),
	}
}

func (s *InMemoryStore) FindActiveDefinition(_ context.Context, locationID, secret string) (*models.LocationDefinition, error) {
	s.mu.RLock()
	def, ok := s.definitions[locationID]
	s.mu.RUnlock()

	if !ok || !def.Active {
		secrets.VerifyMissing(secret)
		return nil, sentinel.ErrNotFound
	}
	if !secrets.Verify(def.SecretHash, secret) {
		return nil, sentinel.ErrNotFound
	}
	return &def, nil
}

func (s *InMemoryStore) FindExistingCredential(_ context.Context, holderID, locationID string) (*models.IssuedCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.credentials[credentialKey{holderID, locationID}]; ok {
		return &c, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) InsertCredential(_ context.Context, credential models.IssuedCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[credential.LocationID]; !ok {
		return fmt.Errorf("insert credential: unknown location %q", credential.LocationID)
	}
	key := credentialKey{credential.HolderID, credential.LocationID}
	if _, exists := s.credentials[key]; exists {
		return fmt.Errorf("credential already issued: %w", sentinel.ErrConflict)
	}
	s.credentials[key] = credential
	return nil
}

func (s *InMemoryStore) ListActiveDefinitions(_ context.Context) ([]models.LocationDefinition, error) {
	return s.listDefinitions(true), nil
}

func (s *InMemoryStore) ListDefinitions(_ context.Context) ([]models.LocationDefinition, error) {
	return s.listDefinitions(false), nil
}

func (s *InMemoryStore) listDefinitions(activeOnly bool) []models.LocationDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.LocationDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *InMemoryStore) ListCredentialsByHolder(_ context.Context, holderID string) ([]models.CollectionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CollectionEntry
	for key, c := range s.credentials {
		if key.holderID != holderID {
			continue
		}
		def := s.definitions[c.LocationID]
		out = append(out, models.CollectionEntry{
			Credential:    c,
			LocationTitle: def.Title,
			TitleEn:       def.TitleEn,
			ImageURL:      def.ImageURL,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Credential.CollectedAt.After(out[j].Credential.CollectedAt)
	})
	return out, nil
}

func (s *InMemoryStore) CollectedLocationIDs(_ context.Context, holderID string, locationIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool)
	for key := range s.credentials {
		if key.holderID == holderID && slices.Contains(locationIDs, key.locationID) {
			out[key.locationID] = true
		}
	}
	return out, nil
}

func (s *InMemoryStore) CreateDefinition(_ context.Context, def models.LocationDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.definitions[def.ID]; exists {
		return fmt.Errorf("location %q already exists: %w", def.ID, sentinel.ErrConflict)
	}
	s.definitions[def.ID] = def
	return nil
}

func (s *InMemoryStore) SetActive(_ context.Context, locationID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.definitions[locationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	def.Active = active
	s.definitions[locationID] = def
	return nil
}
