package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/units"
)

// UnitService is the unit pool.
type UnitService interface {
	List(ctx context.Context, userID string, f domain.UnitFilter) (*units.ListResult, error)
	Locations(ctx context.Context, userID string) ([]domain.LocationCount, error)
	Search(ctx context.Context, userID string, q units.SearchQuery) ([]domain.InformationUnit, error)
	MarkUsed(ctx context.Context, userID string, ids []string) (int64, error)
	UploadText(ctx context.Context, userID string, in units.Upload) (*units.UploadResult, error)
}

// UnitHandler serves information units.
type UnitHandler struct {
	units UnitService
}

// NewUnitHandler creates a UnitHandler.
func NewUnitHandler(svc UnitService) *UnitHandler {
	return &UnitHandler{units: svc}
}

func unitFilter(c *gin.Context) domain.UnitFilter {
	return domain.UnitFilter{
		LocationCity: c.Query("location_city"),
		Topic:        c.Query("topic"),
		ScoutID:      c.Query("scout_id"),
		UnusedOnly:   queryBool(c, "unused_only", true),
		Limit:        queryInt(c, "limit", 0),
		Offset:       queryInt(c, "offset", 0),
	}
}

// List handles GET /api/v1/units.
func (h *UnitHandler) List(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	res, err := h.units.List(c.Request.Context(), user, unitFilter(c))
	if err != nil {
		respondError(c, err, "failed to list units")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": res.Units,
		"meta": gin.H{"total": res.Total, "limit": res.Limit, "offset": res.Offset},
	})
}

// Locations handles GET /api/v1/units/locations.
func (h *UnitHandler) Locations(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	locations, err := h.units.Locations(c.Request.Context(), user)
	if err != nil {
		respondError(c, err, "failed to load locations")
		return
	}
	respondData(c, http.StatusOK, locations)
}

// Search handles GET /api/v1/units/search.
func (h *UnitHandler) Search(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}

	q := units.SearchQuery{
		Query:  c.Query("q"),
		Filter: unitFilter(c),
		Limit:  queryInt(c, "limit", 0),
	}
	if raw := c.Query("min_similarity"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, CodeValidation, "min_similarity must be a number")
			return
		}
		q.MinSimilarity = &v
	}

	found, err := h.units.Search(c.Request.Context(), user, q)
	if err != nil {
		respondError(c, err, "search failed")
		return
	}
	respondData(c, http.StatusOK, found)
}

type markUsedRequest struct {
	UnitIDs []string `json:"unit_ids"`
}

// MarkUsed handles PATCH /api/v1/units/mark-used.
func (h *UnitHandler) MarkUsed(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var req markUsedRequest
	if !bindJSON(c, &req) {
		return
	}

	n, err := h.units.MarkUsed(c.Request.Context(), user, req.UnitIDs)
	if err != nil {
		respondError(c, err, "failed to mark units")
		return
	}
	respondData(c, http.StatusOK, gin.H{"marked_count": n})
}

// Upload handles POST /api/v1/units/manual.
func (h *UnitHandler) Upload(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var in units.Upload
	if !bindJSON(c, &in) {
		return
	}

	res, err := h.units.UploadText(c.Request.Context(), user, in)
	if err != nil {
		respondError(c, err, "upload failed")
		return
	}
	respondData(c, http.StatusOK, res)
}
