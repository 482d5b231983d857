package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"visitproof/internal/geo"
	"visitproof/internal/stamps/models"
	"visitproof/internal/stamps/secrets"
	"visitproof/pkg/platform/sentinel"
)

// PostgresStore persists definitions and issued credentials in PostgreSQL.
// The issued_credentials (holder_id, location_id) unique constraint is the
// idempotency anchor for concurrent collects.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed stamp store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const definitionColumns = `id, title, COALESCE(title_en, ''), secret_hash, active, token_id, latitude, longitude, COALESCE(image_url, ''), created_at`

// FindActiveDefinition matches the id, the active flag and the secret digest.
// A wrong secret and an unknown or inactive id are both ErrNotFound.
func (s *PostgresStore) FindActiveDefinition(ctx context.Context, locationID, secret string) (*models.LocationDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM stamp_locations WHERE id = $1 AND active`
	def, err := scanDefinition(s.db.QueryRowContext(ctx, query, locationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			secrets.VerifyMissing(secret)
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active definition: %w", err)
	}
	if !secrets.Verify(def.SecretHash, secret) {
		return nil, sentinel.ErrNotFound
	}
	return def, nil
}

func (s *PostgresStore) FindExistingCredential(ctx context.Context, holderID, locationID string) (*models.IssuedCredential, error) {
	query := `
		SELECT id, holder_id, location_id, token_id, ledger_tx_hash, ledger_block_number,
		       observed_latitude, observed_longitude, collected_at
		FROM issued_credentials
		WHERE holder_id = $1 AND location_id = $2
	`
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, holderID, locationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find existing credential: %w", err)
	}
	return c, nil
}

// InsertCredential writes a credential; a duplicate (holder, location) is ErrConflict.
func (s *PostgresStore) InsertCredential(ctx context.Context, c models.IssuedCredential) error {
	query := `
		INSERT INTO issued_credentials (
			id, holder_id, location_id, token_id, ledger_tx_hash, ledger_block_number,
			observed_latitude, observed_longitude, collected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var blockNumber sql.NullInt64
	if c.LedgerBlockNumber != nil {
		blockNumber = sql.NullInt64{Int64: int64(*c.LedgerBlockNumber), Valid: true} //nolint:gosec // block heights fit in int64
	}
	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.HolderID,
		c.LocationID,
		int64(c.TokenID), //nolint:gosec // token ids are bounded by the schema check
		nullString(c.LedgerTxHash),
		blockNumber,
		nullFloat(c.ObservedLatitude),
		nullFloat(c.ObservedLongitude),
		c.CollectedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("credential already issued: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveDefinitions(ctx context.Context) ([]models.LocationDefinition, error) {
	return s.listDefinitions(ctx, `SELECT `+definitionColumns+` FROM stamp_locations WHERE active ORDER BY created_at, id`)
}

// ListDefinitions includes inactive definitions, for administration.
func (s *PostgresStore) ListDefinitions(ctx context.Context) ([]models.LocationDefinition, error) {
	return s.listDefinitions(ctx, `SELECT `+definitionColumns+` FROM stamp_locations ORDER BY created_at, id`)
}

func (s *PostgresStore) listDefinitions(ctx context.Context, query string) ([]models.LocationDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []models.LocationDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		out = append(out, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return out, nil
}

// ListCredentialsByHolder returns the holder's credentials newest first with location display fields.
func (s *PostgresStore) ListCredentialsByHolder(ctx context.Context, holderID string) ([]models.CollectionEntry, error) {
	query := `
		SELECT c.id, c.holder_id, c.location_id, c.token_id, c.ledger_tx_hash, c.ledger_block_number,
		       c.observed_latitude, c.observed_longitude, c.collected_at,
		       l.title, COALESCE(l.title_en, ''), COALESCE(l.image_url, '')
		FROM issued_credentials c
		JOIN stamp_locations l ON l.id = c.location_id
		WHERE c.holder_id = $1
		ORDER BY c.collected_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, holderID)
	if err != nil {
		return nil, fmt.Errorf("list credentials by holder: %w", err)
	}
	defer rows.Close()

	var out []models.CollectionEntry
	for rows.Next() {
		var entry models.CollectionEntry
		cred, err := scanCredentialWith(rows, &entry.LocationTitle, &entry.TitleEn, &entry.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("scan collection entry: %w", err)
		}
		entry.Credential = *cred
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection: %w", err)
	}
	return out, nil
}

// CollectedLocationIDs returns which of locationIDs the holder has collected.
func (s *PostgresStore) CollectedLocationIDs(ctx context.Context, holderID string, locationIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(locationIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT location_id
		FROM issued_credentials
		WHERE holder_id = $1 AND location_id = ANY($2::text[])
	`
	rows, err := s.db.QueryContext(ctx, query, holderID, pq.Array(locationIDs))
	if err != nil {
		return nil, fmt.Errorf("collected location ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan collected location id: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collected location ids: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateDefinition(ctx context.Context, def models.LocationDefinition) error {
	query := `
		INSERT INTO stamp_locations (id, title, title_en, secret_hash, active, token_id, latitude, longitude, image_url, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
	`
	var lat, lon sql.NullFloat64
	if def.Coordinates != nil {
		lat = sql.NullFloat64{Float64: def.Coordinates.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: def.Coordinates.Longitude, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		def.ID,
		def.Title,
		def.TitleEn,
		def.SecretHash,
		def.Active,
		int64(def.TokenID), //nolint:gosec // token ids are bounded by the schema check
		lat,
		lon,
		def.ImageURL,
		def.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("location %q already exists: %w", def.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create definition: %w", err)
	}
	return nil
}

// SetActive toggles a definition; deactivating revokes its secret.
func (s *PostgresStore) SetActive(ctx context.Context, locationID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stamp_locations SET active = $2 WHERE id = $1`, locationID, active)
	if err != nil {
		return fmt.Errorf("set definition active: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set definition active rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func scanDefinition(r row) (*models.LocationDefinition, error) {
	var def models.LocationDefinition
	var tokenID int64
	var lat, lon sql.NullFloat64
	if err := r.Scan(&def.ID, &def.Title, &def.TitleEn, &def.SecretHash, &def.Active, &tokenID, &lat, &lon, &def.ImageURL, &def.CreatedAt); err != nil {
		return nil, err
	}
	def.TokenID = uint64(tokenID) //nolint:gosec // non-negative by schema check
	if lat.Valid && lon.Valid {
		def.Coordinates = &geo.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	return &def, nil
}

func scanCredential(r row) (*models.IssuedCredential, error) {
	return scanCredentialWith(r)
}

func scanCredentialWith(r row, extra ...any) (*models.IssuedCredential, error) {
	var c models.IssuedCredential
	var id uuid.UUID
	var tokenID int64
	var txHash sql.NullString
	var blockNumber sql.NullInt64
	var lat, lon sql.NullFloat64
	dest := append([]any{&id, &c.HolderID, &c.LocationID, &tokenID, &txHash, &blockNumber, &lat, &lon, &c.CollectedAt}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	c.ID = id
	c.TokenID = uint64(tokenID) //nolint:gosec // non-negative by schema check
	if txHash.Valid {
		c.LedgerTxHash = &txHash.String
	}
	if blockNumber.Valid {
		n := uint64(blockNumber.Int64) //nolint:gosec // block heights are non-negative
		c.LedgerBlockNumber = &n
	}
	if lat.Valid {
		c.ObservedLatitude = &lat.Float64
	}
	if lon.Valid {
		c.ObservedLongitude = &lon.Float64
	}
	return &c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
