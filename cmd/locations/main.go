// Package main provides an admin CLI for managing collectible locations:
// creating them with a fresh secret, revoking them and listing them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"visitproof/internal/geo"
	"visitproof/internal/platform/config"
	"visitproof/internal/platform/database"
	"visitproof/internal/platform/redis"
	"visitproof/internal/stamps/catalog"
	"visitproof/internal/stamps/models"
	"visitproof/internal/stamps/secrets"
	"visitproof/internal/stamps/store"
)

// definitionStore is the admin slice of the credential store.
type definitionStore interface {
	CreateDefinition(ctx context.Context, def models.LocationDefinition) error
	SetActive(ctx context.Context, locationID string, active bool) error
	ListDefinitions(ctx context.Context) ([]models.LocationDefinition, error)
}

// invalidator drops the cached public catalog after a change.
type invalidator interface {
	Invalidate(ctx context.Context) error
}

type createOutput struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	TokenID uint64 `json:"tokenId"`
	Secret  string `json:"secret"`
	ScanURL string `json:"scanUrl"`
}

type admin struct {
	store   definitionStore
	cache   invalidator
	baseURL string
	out     io.Writer
	now     func() time.Time
}

func main() {
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	createID := createCmd.String("id", "", "Location ID (required)")
	createTitle := createCmd.String("title", "", "Display title (required)")
	createTitleEn := createCmd.String("title-en", "", "English display title")
	createToken := createCmd.Uint64("token-id", 0, "Ledger token ID (required)")
	createLat := createCmd.String("lat", "", "Latitude; omit for a location-less credential")
	createLon := createCmd.String("lon", "", "Longitude")
	createImage := createCmd.String("image-url", "", "Image URL")
	createJSON := createCmd.Bool("json", false, "Output as JSON")

	deactivateCmd := flag.NewFlagSet("deactivate", flag.ExitOnError)
	deactivateID := deactivateCmd.String("id", "", "Location ID (required)")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listJSON := listCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	ctx := context.Background()
	a, closeFn, err := connect(ctx, config.FromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	switch cmd {
	case "create":
		createCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		coords, perr := parseCoordinates(*createLat, *createLon)
		if perr != nil {
			err = perr
			break
		}
		err = a.create(ctx, models.LocationDefinition{
			ID:          strings.TrimSpace(*createID),
			Title:       strings.TrimSpace(*createTitle),
			TitleEn:     strings.TrimSpace(*createTitleEn),
			TokenID:     *createToken,
			Coordinates: coords,
			ImageURL:    strings.TrimSpace(*createImage),
		}, *createJSON)
	case "deactivate":
		deactivateCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		err = a.deactivate(ctx, strings.TrimSpace(*deactivateID))
	case "list":
		listCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		err = a.list(ctx, *listJSON)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeFn()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`locations - Manage collectible locations

Usage:
  locations <command> [flags]

Commands:
  create      Create a location with a new secret and print its scan URL
  deactivate  Revoke a location; its secret stops working immediately
  list        List all locations

Environment:
  DATABASE_URL     Postgres connection string (required)
  REDIS_URL        Catalog cache to invalidate after changes (optional)
  PUBLIC_BASE_URL  Base for printed scan URLs

Examples:
  locations create -id harbor -title "Harbor" -token-id 1 -lat 38.905 -lon 141.575
  locations deactivate -id harbor
  locations list -json`)
}

func connect(ctx context.Context, cfg config.Server) (*admin, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	pool, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(ctx, pool.DB()); err != nil {
		pool.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	var cache invalidator
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		pool.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		cache = catalog.NewRedisCache(client.Client, cfg.Redis.CatalogTTL)
	}

	closed := false
	closeFn := func() {
		if closed {
			return
		}
		closed = true
		if client != nil {
			client.Close() //nolint:errcheck // process is exiting
		}
		pool.Close() //nolint:errcheck // process is exiting
	}
	return &admin{
		store:   store.NewPostgres(pool.DB()),
		cache:   cache,
		baseURL: cfg.PublicBaseURL,
		out:     os.Stdout,
		now:     time.Now,
	}, closeFn, nil
}

// parseCoordinates returns nil when both values are empty.
func parseCoordinates(lat, lon string) (*geo.Coordinates, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, errors.New("-lat and -lon must be given together")
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid -lat %q", lat)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid -lon %q", lon)
	}
	c := geo.Coordinates{Latitude: latitude, Longitude: longitude}
	if !c.Valid() {
		return nil, fmt.Errorf("coordinates out of range: %s,%s", lat, lon)
	}
	return &c, nil
}

func (a *admin) create(ctx context.Context, def models.LocationDefinition, jsonOutput bool) error {
	if def.ID == "" || def.Title == "" {
		return errors.New("-id and -title are required")
	}
	if def.TokenID == 0 {
		return errors.New("-token-id is required")
	}

	secret, err := secrets.Generate()
	if err != nil {
		return err
	}
	digest, err := secrets.Hash(secret)
	if err != nil {
		return err
	}
	def.SecretHash = digest
	def.Active = true
	def.CreatedAt = a.now().UTC()

	if err := a.store.CreateDefinition(ctx, def); err != nil {
		return err
	}
	a.invalidate(ctx)

	out := createOutput{
		ID:      def.ID,
		Title:   def.Title,
		TokenID: def.TokenID,
		Secret:  secret,
		ScanURL: secrets.ScanURL(a.baseURL, def.ID, secret),
	}
	if jsonOutput {
		return a.printJSON(out)
	}
	fmt.Fprintln(a.out, "Location created")
	fmt.Fprintln(a.out, "================")
	fmt.Fprintf(a.out, "ID:       %s\n", out.ID)
	fmt.Fprintf(a.out, "Title:    %s\n", out.Title)
	fmt.Fprintf(a.out, "Token ID: %d\n", out.TokenID)
	fmt.Fprintf(a.out, "Secret:   %s\n", out.Secret)
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Scan URL (encode this in the QR code; the secret is not stored in plain text):")
	fmt.Fprintln(a.out, out.ScanURL)
	return nil
}

func (a *admin) deactivate(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("-id is required")
	}
	if err := a.store.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate %s: %w", id, err)
	}
	a.invalidate(ctx)
	fmt.Fprintf(a.out, "Location %s deactivated\n", id)
	return nil
}

func (a *admin) list(ctx context.Context, jsonOutput bool) error {
	defs, err := a.store.ListDefinitions(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		type entry struct {
			models.CatalogLocation
			Active bool `json:"active"`
		}
		entries := make([]entry, 0, len(defs))
		for _, d := range defs {
			entries = append(entries, entry{CatalogLocation: d.ToCatalog(), Active: d.Active})
		}
		return a.printJSON(entries)
	}
	for _, d := range defs {
		status := "active"
		if !d.Active {
			status = "inactive"
		}
		where := "-"
		if d.Coordinates != nil {
			where = fmt.Sprintf("%.5f,%.5f", d.Coordinates.Latitude, d.Coordinates.Longitude)
		}
		fmt.Fprintf(a.out, "%-20s %-8s token=%-4d %-22s %s\n", d.ID, status, d.TokenID, where, d.Title)
	}
	return nil
}

func (a *admin) invalidate(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: catalog cache not invalidated: %v\n", err)
	}
}

func (a *admin) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
