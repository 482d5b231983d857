package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"visitproof/internal/stamps/catalog"
	"visitproof/internal/stamps/issuance"
	"visitproof/internal/stamps/ledger"
	"visitproof/internal/stamps/models"
	dErrors "visitproof/pkg/domain-errors"
	"visitproof/pkg/platform/httputil"
	"visitproof/pkg/platform/middleware/auth"
	"visitproof/pkg/platform/middleware/request"
	"visitproof/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Collector,Catalog

// Collector issues credentials for presence claims.
type Collector interface {
	Collect(ctx context.Context, claim models.PresenceClaim) (*issuance.Result, error)
}

// Catalog serves the location list and holder collections.
type Catalog interface {
	Locations(ctx context.Context, holderID, filterID string) ([]catalog.Location, error)
	Collection(ctx context.Context, holderID string) (*catalog.Collection, error)
}

const maxCollectBodyBytes = 16 << 10

// Handler serves the /stamps endpoints.
type Handler struct {
	collector   Collector
	catalog     Catalog
	holders     auth.HolderValidator
	logger      *slog.Logger
	explorerURL string
}

// New builds the handler. A nil holders validator leaves the holder id to the
// request itself.
func New(collector Collector, catalog Catalog, holders auth.HolderValidator, logger *slog.Logger, explorerURL string) *Handler {
	return &Handler{
		collector:   collector,
		catalog:     catalog,
		holders:     holders,
		logger:      logger,
		explorerURL: explorerURL,
	}
}

// Register mounts the routes. Request id, logging and recovery are applied by
// the caller's router; the location catalog stays public.
func (h *Handler) Register(r chi.Router) {
	r.Route("/stamps", func(r chi.Router) {
		r.Get("/locations", h.HandleLocations)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireHolder(h.holders, h.logger))
			r.With(request.ContentTypeJSON, request.BodyLimit(maxCollectBodyBytes)).Post("/collect", h.HandleCollect)
			r.Get("/collection", h.HandleCollection)
		})
	})
}

// HandleCollect issues a credential for a scanned location.
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[CollectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.bindHolder(ctx, &req.HolderID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := httputil.PrepareRequest(req); err != nil {
		h.logger.WarnContext(ctx, "invalid collect request",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	res, err := h.collector.Collect(ctx, req.Claim())
	if err != nil {
		h.writeCollectError(ctx, w, err)
		return
	}

	if res.ReconciliationPending {
		h.logger.ErrorContext(ctx, "credential issued with reconciliation pending",
			"request_id", requestID,
			"location_id", req.LocationID,
			"reconciliation_pending", true,
		)
	}
	httputil.WriteJSON(w, http.StatusCreated, toCollectResponse(res, h.explorerURL))
}

func (h *Handler) writeCollectError(ctx context.Context, w http.ResponseWriter, err error) {
	requestID := requestcontext.RequestID(ctx)

	var rej *issuance.Rejection
	if errors.As(err, &rej) {
		httputil.WriteJSON(w, rejectionStatus(rej.Reason), toRejectionResponse(rej))
		return
	}

	var ce *ledger.ChainError
	if errors.As(err, &ce) {
		h.logger.ErrorContext(ctx, "ledger claim failed",
			"request_id", requestID,
			"kind", string(ce.Kind),
			"tx_hash", ce.TxHash,
			"error", err,
		)
		status, body := toChainErrorResponse(ce, h.explorerURL)
		httputil.WriteJSON(w, status, body)
		return
	}

	h.logger.ErrorContext(ctx, "collect failed",
		"request_id", requestID,
		"error", err,
	)
	httputil.WriteErrorWithDetails(w, err, collectFailedDetails)
}

// collectFailedDetails answers store failures. Nothing was issued, so the
// request is safe to retry.
const collectFailedDetails = "Failed to record credential, please retry"

// HandleLocations lists active locations with collected flags.
func (h *Handler) HandleLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holderID := r.URL.Query().Get("holderId")
	if err := h.bindHolder(ctx, &holderID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	locations, err := h.catalog.Locations(ctx, holderID, r.URL.Query().Get("id"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list locations",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LocationsResponse{Locations: locations})
}

// HandleCollection returns a holder's credentials and progress.
func (h *Handler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holderID := r.URL.Query().Get("holderId")
	if err := h.bindHolder(ctx, &holderID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if holderID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "holderId is required"))
		return
	}

	collection, err := h.catalog.Collection(ctx, holderID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "failed to load collection",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, collection)
}

// bindHolder reconciles the holder named in the request with the
// authenticated one. With authentication on, the token decides and a
// different explicit holder is forbidden.
func (h *Handler) bindHolder(ctx context.Context, holderID *string) error {
	authenticated := requestcontext.HolderID(ctx)
	if authenticated == "" {
		return nil
	}
	authenticated = models.NormalizeHolderID(authenticated)
	if requested := models.NormalizeHolderID(*holderID); requested != "" && requested != authenticated {
		return dErrors.New(dErrors.CodeForbidden, "holderId does not match the authenticated holder")
	}
	*holderID = authenticated
	return nil
}
