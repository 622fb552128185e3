package risk

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LegionofMany/blockpages-risk/internal/auth"
	"github.com/LegionofMany/blockpages-risk/internal/validation"
)

// Handler provides HTTP endpoints for the risk engine.
type Handler struct {
	service      *Service
	listMinScore int
}

// NewHandler creates a risk HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, listMinScore: DefaultListMinScore}
}

// WithListMinScore sets the threshold the high-risk listing uses when
// the request carries no minScore parameter.
func (h *Handler) WithListMinScore(min int) *Handler {
	if min > 0 {
		h.listMinScore = min
	}
	return h
}

// RegisterRoutes sets up the public read endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/risk/:chain/:address", h.GetRisk)
	r.GET("/risk/:chain/:address/history", h.GetHistory)
}

// RegisterAdminRoutes sets up the admin endpoints. The caller applies
// admin auth to the group; rateLimit guards the mutating routes only.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup, rateLimit gin.HandlerFunc) {
	r.GET("/risk/wallets", h.ListHighRisk)
	r.PATCH("/risk/wallets", rateLimit, h.PatchOverride)
	r.DELETE("/risk/wallets/:chain/:address/override", rateLimit, h.ClearOverride)
}

// GetRisk returns the authoritative assessment for a wallet.
// GET /v1/risk/:chain/:address[?preview=automated]
func (h *Handler) GetRisk(c *gin.Context) {
	chain := c.Param("chain")
	address := c.Param("address")

	if !validation.IsValidAddress(chain, address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Malformed wallet address for chain " + chain,
		})
		return
	}

	var (
		assessment *Assessment
		err        error
	)
	if c.Query("preview") == "automated" {
		assessment, err = h.service.EvaluateAutomated(c.Request.Context(), chain, address)
	} else {
		assessment, err = h.service.Evaluate(c.Request.Context(), chain, address)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "evaluation_failed",
			"message": "Failed to evaluate wallet risk",
		})
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// GetHistory returns the wallet's risk change history, oldest first.
// GET /v1/risk/:chain/:address/history?limit=
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	entries, err := h.service.History(c.Request.Context(), c.Param("chain"), c.Param("address"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to query risk history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chain":   c.Param("chain"),
		"address": c.Param("address"),
		"history": entries,
		"count":   len(entries),
	})
}

// ListHighRisk returns wallets at or above the score threshold.
// GET /v1/admin/risk/wallets?minScore=&limit=
func (h *Handler) ListHighRisk(c *gin.Context) {
	minScore := h.listMinScore
	if ms := c.Query("minScore"); ms != "" {
		if parsed, err := strconv.Atoi(ms); err == nil {
			minScore = parsed
		}
	}
	limit := MaxListPageSize
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	result, err := h.service.ListHighRisk(c.Request.Context(), minScore, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to list high-risk wallets",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"minScore": minScore,
		"wallets":  result,
		"count":    len(result),
	})
}

// OverrideRequest is the admin override payload. At least one of
// riskScore/riskCategory is required.
type OverrideRequest struct {
	Address      string  `json:"address" binding:"required"`
	Chain        string  `json:"chain" binding:"required"`
	RiskScore    *int    `json:"riskScore,omitempty"`
	RiskCategory *string `json:"riskCategory,omitempty"`
}

// PatchOverride sets or updates an admin override.
// PATCH /v1/admin/risk/wallets
func (h *Handler) PatchOverride(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'address' and 'chain'",
		})
		return
	}

	if !validation.IsValidAddress(req.Chain, req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Malformed wallet address for chain " + req.Chain,
		})
		return
	}

	var category *Category
	if req.RiskCategory != nil {
		cat := Category(*req.RiskCategory)
		category = &cat
	}

	actor := auth.AdminIdentity(c)
	assessment, err := h.service.SetOverride(c.Request.Context(), req.Chain, req.Address, req.RiskScore, category, actor)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      assessment.Address,
		"chain":        assessment.Chain,
		"riskScore":    assessment.Score,
		"riskCategory": assessment.Category,
		"source":       assessment.Source,
	})
}

// ClearOverride removes an admin override.
// DELETE /v1/admin/risk/wallets/:chain/:address/override
func (h *Handler) ClearOverride(c *gin.Context) {
	actor := auth.AdminIdentity(c)
	assessment, err := h.service.ClearOverride(c.Request.Context(), c.Param("chain"), c.Param("address"), actor)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      assessment.Address,
		"chain":        assessment.Chain,
		"riskScore":    assessment.Score,
		"riskCategory": assessment.Category,
		"source":       assessment.Source,
	})
}

// writeServiceError maps service errors to distinct HTTP statuses so
// callers can tell permanent failures from retryable ones.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No wallet record for that chain and address",
		})
	case errors.Is(err, ErrOverrideNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No override is set for that wallet",
		})
	case errors.Is(err, ErrNoFields):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "At least one of riskScore or riskCategory is required",
		})
	case errors.Is(err, ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "riskCategory must be one of green, yellow, red, black",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Override operation failed",
		})
	}
}
