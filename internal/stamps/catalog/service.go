// Package catalog serves the public location list and per-holder collection
// views. The location list is cached; anything holder-specific is read from
// the store on every call.
package catalog

import (
	"context"
	"log/slog"
	"math"
	"time"

	"visitproof/internal/stamps/ledger"
	"visitproof/internal/stamps/metrics"
	"visitproof/internal/stamps/models"
	dErrors "visitproof/pkg/domain-errors"
)

// Store is the read side of the credential store used by the catalog.
type Store interface {
	ListActiveDefinitions(ctx context.Context) ([]models.LocationDefinition, error)
	CollectedLocationIDs(ctx context.Context, holderID string, locationIDs []string) (map[string]bool, error)
	ListCredentialsByHolder(ctx context.Context, holderID string) ([]models.CollectionEntry, error)
}

// Location is a catalog entry annotated for one holder.
type Location struct {
	models.CatalogLocation
	Collected bool `json:"collected"`
}

// CollectionItem is one credential in a holder's collection.
type CollectionItem struct {
	LocationID    string    `json:"locationId"`
	LocationTitle string    `json:"locationTitle"`
	TitleEn       string    `json:"titleEn,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	TokenID       uint64    `json:"tokenId"`
	LedgerTxHash  *string   `json:"ledgerTxHash"`
	ExplorerURL   string    `json:"explorerUrl,omitempty"`
	TestMode      bool      `json:"testMode"`
	CollectedAt   time.Time `json:"collectedAt"`
}

type Progress struct {
	Collected  int `json:"collected"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

type Collection struct {
	HolderID string           `json:"holderId"`
	Items    []CollectionItem `json:"stamps"`
	Progress Progress         `json:"progress"`
}

type Service struct {
	store       Store
	cache       Cache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	explorerURL string
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithExplorerURL sets the block explorer base used for credential links.
func WithExplorerURL(base string) Option {
	return func(s *Service) {
		s.explorerURL = base
	}
}

// NewService builds the catalog. A nil cache disables caching.
func NewService(store Store, cache Cache, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locations lists active locations ordered by creation time. filterID narrows
// the result to one location; an unknown id yields an empty list. holderID is
// optional and only drives the collected flags.
func (s *Service) Locations(ctx context.Context, holderID, filterID string) ([]Location, error) {
	catalog, err := s.activeCatalog(ctx)
	if err != nil {
		return nil, err
	}

	if filterID != "" {
		var filtered []models.CatalogLocation
		for _, loc := range catalog {
			if loc.ID == filterID {
				filtered = append(filtered, loc)
			}
		}
		catalog = filtered
	}

	collected := map[string]bool{}
	if holderID != "" && len(catalog) > 0 {
		ids := make([]string, len(catalog))
		for i, loc := range catalog {
			ids[i] = loc.ID
		}
		collected, err = s.store.CollectedLocationIDs(ctx, models.NormalizeHolderID(holderID), ids)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load collected locations")
		}
	}

	out := make([]Location, 0, len(catalog))
	for _, loc := range catalog {
		out = append(out, Location{CatalogLocation: loc, Collected: collected[loc.ID]})
	}
	return out, nil
}

// Collection returns the holder's credentials newest first with progress
// against the number of active locations.
func (s *Service) Collection(ctx context.Context, holderID string) (*Collection, error) {
	holderID = models.NormalizeHolderID(holderID)
	if holderID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "holderId is required")
	}

	entries, err := s.store.ListCredentialsByHolder(ctx, holderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load collection")
	}
	catalog, err := s.activeCatalog(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]CollectionItem, 0, len(entries))
	for _, e := range entries {
		c := e.Credential
		item := CollectionItem{
			LocationID:    c.LocationID,
			LocationTitle: e.LocationTitle,
			TitleEn:       e.TitleEn,
			ImageURL:      e.ImageURL,
			TokenID:       c.TokenID,
			LedgerTxHash:  c.LedgerTxHash,
			TestMode:      !c.OnLedger(),
			CollectedAt:   c.CollectedAt,
		}
		if c.OnLedger() {
			item.ExplorerURL = ledger.ExplorerURL(s.explorerURL, *c.LedgerTxHash)
		}
		items = append(items, item)
	}

	return &Collection{
		HolderID: holderID,
		Items:    items,
		Progress: progress(len(items), len(catalog)),
	}, nil
}

// Invalidate drops the cached catalog after definitions change.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

func (s *Service) activeCatalog(ctx context.Context) ([]models.CatalogLocation, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "catalog cache read failed", "error", err)
		}
		s.metrics.IncCatalogCache(ok)
		if ok {
			return cached, nil
		}
	}

	defs, err := s.store.ListActiveDefinitions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list locations")
	}
	catalog := make([]models.CatalogLocation, len(defs))
	for i, d := range defs {
		catalog[i] = d.ToCatalog()
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, catalog); err != nil {
			s.logger.WarnContext(ctx, "catalog cache write failed", "error", err)
		}
	}
	return catalog, nil
}

func progress(collected, total int) Progress {
	p := Progress{Collected: collected, Total: total}
	if total > 0 {
		p.Percentage = int(math.Round(float64(collected) / float64(total) * 100))
		if p.Percentage > 100 {
			p.Percentage = 100
		}
	}
	return p
}
