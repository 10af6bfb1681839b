/*
Package api exposes the audience service over HTTP.

Handlers are a thin translation layer: decode the request, call the
registry or estimator, map domain errors to status codes. All business
rules live below this package so the transport stays replaceable.

The estimate endpoint is synchronous: the builder UI debounces on its
side of the wire as well, so a request that reaches us is expected to be
answered, not coalesced.
*/
package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/cohortlab/cohort/internal/estimator"
	"github.com/cohortlab/cohort/internal/filter"
	"github.com/cohortlab/cohort/internal/registry"
	"github.com/cohortlab/cohort/internal/types"
)

// AudienceStore is the registry surface the handlers need.
type AudienceStore interface {
	Create(ctx context.Context, name, description string, segments []types.Segment, createdBy string) (registry.Audience, error)
	Get(ctx context.Context, id types.AudienceID) (registry.Audience, error)
	List(ctx context.Context, page, size int) ([]registry.Audience, error)
	Update(ctx context.Context, id types.AudienceID, name, description string, segments []types.Segment) (registry.Audience, error)
	Delete(ctx context.Context, id types.AudienceID) error
}

// Sizer estimates audience sizes. Implemented by *estimator.Estimator.
type Sizer interface {
	Estimate(ctx context.Context, rules []types.Rule, segments []types.Segment, baseAudienceID types.AudienceID) estimator.Estimate
}

// Handler holds the dependencies for all audience endpoints.
type Handler struct {
	store AudienceStore
	sizer Sizer
	log   zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(store AudienceStore, sizer Sizer, log zerolog.Logger) *Handler {
	return &Handler{store: store, sizer: sizer, log: log}
}

// audienceRequest is the create/update payload.
type audienceRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Segments    []types.Segment `json:"segments"`
	CreatedBy   string          `json:"created_by"`
}

// estimateRequest is the estimate payload. Rules and segments mirror the
// builder UI state; base_audience_id is optional.
type estimateRequest struct {
	Rules          []types.Rule     `json:"rules"`
	Segments       []types.Segment  `json:"segments"`
	BaseAudienceID types.AudienceID `json:"base_audience_id"`
}

// listResponse wraps a page of audiences.
type listResponse struct {
	Audiences []registry.Audience `json:"audiences"`
	Page      int                 `json:"page"`
	Size      int                 `json:"size"`
}

// CreateAudience registers a new audience definition.
func (h *Handler) CreateAudience(c *fiber.Ctx) error {
	var req audienceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	audience, err := h.store.Create(c.Context(), req.Name, req.Description, req.Segments, req.CreatedBy)
	if err != nil {
		return mapError(err)
	}

	h.log.Info().
		Str("audience_id", string(audience.ID)).
		Int("segments", len(audience.Segments)).
		Msg("audience created")

	return c.Status(fiber.StatusCreated).JSON(audience)
}

// ListAudiences returns a page of audiences, newest first.
func (h *Handler) ListAudiences(c *fiber.Ctx) error {
	page := c.QueryInt("page", 0)
	size := c.QueryInt("size", 0)

	audiences, err := h.store.List(c.Context(), page, size)
	if err != nil {
		return mapError(err)
	}

	if page < 0 {
		page = 0
	}
	return c.JSON(listResponse{Audiences: audiences, Page: page, Size: len(audiences)})
}

// GetAudience returns a single audience with its full segment definition.
func (h *Handler) GetAudience(c *fiber.Ctx) error {
	id, err := types.ParseAudienceID(c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	audience, err := h.store.Get(c.Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(audience)
}

// UpdateAudience replaces an audience's name, description, and segments.
func (h *Handler) UpdateAudience(c *fiber.Ctx) error {
	id, err := types.ParseAudienceID(c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	var req audienceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	audience, err := h.store.Update(c.Context(), id, req.Name, req.Description, req.Segments)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(audience)
}

// DeleteAudience removes an audience definition.
func (h *Handler) DeleteAudience(c *fiber.Ctx) error {
	id, err := types.ParseAudienceID(c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	if err := h.store.Delete(c.Context(), id); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EstimateAudience sizes the audience described by the request body.
// Always answers 200: estimation degrades to a modeled fallback rather
// than failing, and the response says which one the caller got.
func (h *Handler) EstimateAudience(c *fiber.Ctx) error {
	var req estimateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	warnings := filter.Lint(req.Rules)
	warnings = append(warnings, filter.LintSegments(req.Segments)...)
	for _, w := range warnings {
		h.log.Warn().Str("rule_id", string(w.RuleID)).Msg(w.Message)
	}

	estimate := h.sizer.Estimate(c.Context(), req.Rules, req.Segments, req.BaseAudienceID)
	return c.JSON(estimate)
}
