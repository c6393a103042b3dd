package analyses

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"consensus-backend/internal/llm"
	"consensus-backend/internal/shared/server/middleware"
	"consensus-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
	// SubmitLimit and PollLimit are optional per-route rate limiters.
	SubmitLimit gin.HandlerFunc
	PollLimit   gin.HandlerFunc
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis and catalog routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", chain(h.SubmitLimit, h.createAnalysis)...)
	rg.GET("/analyses", h.listAnalyses)
	rg.POST("/analyses/bulk-delete", h.bulkDelete)
	rg.GET("/analyses/:id", chain(h.PollLimit, h.getAnalysis)...)
	rg.POST("/analyses/:id/cancel", h.cancelAnalysis)
	rg.DELETE("/analyses/:id", h.deleteAnalysis)
	rg.GET("/frameworks", h.listFrameworks)
	rg.GET("/providers", h.listProviders)
}

func chain(limit gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limit, handler}
}

type createRequest struct {
	BusinessInput string   `json:"business_input"`
	Frameworks    []string `json:"frameworks"`
	Providers     []string `json:"providers"`
	Depth         string   `json:"depth"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type jobSummary struct {
	ID              string     `json:"id"`
	BusinessInput   string     `json:"business_input"`
	Frameworks      []string   `json:"frameworks"`
	Providers       []string   `json:"providers"`
	Status          string     `json:"status"`
	ConfidenceScore float64    `json:"confidence_score"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (h *Handler) createAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid JSON body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.Create(ctx, userID, Request{
		BusinessInput: req.BusinessInput,
		Frameworks:    req.Frameworks,
		Providers:     req.Providers,
		Depth:         req.Depth,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, validationMessage(err), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to start analysis", nil)
		return
	}
	c.Set(middleware.AnalysisIDKey, job.ID)

	respond.JSON(c, http.StatusAccepted, gin.H{
		"id":     job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.AnalysisIDKey, id)

	job, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeLookupError(c, err, "failed to fetch analysis")
		return
	}
	respond.JSON(c, http.StatusOK, job)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	page := Page{
		Limit:  queryInt(c, "limit", defaultPageLimit),
		Offset: queryInt(c, "offset", 0),
	}
	filter := ListFilter{
		Search: c.Query("search"),
		Status: c.Query("status"),
	}

	jobs, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), filter, page)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, validationMessage(err), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to list analyses", nil)
		return
	}

	items := make([]jobSummary, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobSummary{
			ID:              job.ID,
			BusinessInput:   job.BusinessInput,
			Frameworks:      job.Frameworks,
			Providers:       job.Providers,
			Status:          job.Status,
			ConfidenceScore: job.ConfidenceScore,
			Error:           job.Error,
			CreatedAt:       job.CreatedAt,
			CompletedAt:     job.CompletedAt,
		})
	}
	page = page.normalize()
	respond.JSON(c, http.StatusOK, gin.H{
		"analyses": items,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

func (h *Handler) cancelAnalysis(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.AnalysisIDKey, id)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.Cancel(ctx, middleware.UserIDFromContext(c), id)
	if err != nil {
		if errors.Is(err, ErrNotCancellable) {
			respond.Error(c, http.StatusConflict, ErrorCodeNotCancellable, "analysis can only be cancelled while pending or processing", nil)
			return
		}
		h.writeLookupError(c, err, "failed to cancel analysis")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"id":     job.ID,
		"status": job.Status,
	})
}

func (h *Handler) deleteAnalysis(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.AnalysisIDKey, id)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	if err := h.Svc.Delete(ctx, middleware.UserIDFromContext(c), id); err != nil {
		h.writeLookupError(c, err, "failed to delete analysis")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"id":      id,
		"deleted": true,
	})
}

func (h *Handler) bulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid JSON body", nil)
		return
	}
	if len(req.IDs) == 0 {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "ids must not be empty", []map[string]string{
			{"field": "ids", "issue": "required"},
		})
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	deleted, err := h.Svc.DeleteMany(ctx, middleware.UserIDFromContext(c), req.IDs)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to delete analyses", gin.H{"deleted_count": deleted})
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted_count": deleted})
}

func (h *Handler) listFrameworks(c *gin.Context) {
	frameworks := llm.Frameworks()
	items := make([]gin.H, 0, len(frameworks))
	for _, fw := range frameworks {
		items = append(items, gin.H{
			"id":       fw.ID,
			"name":     fw.Name,
			"sections": nonNilStrings(fw.Sections),
		})
	}
	respond.JSON(c, http.StatusOK, gin.H{"frameworks": items})
}

func (h *Handler) listProviders(c *gin.Context) {
	respond.JSON(c, http.StatusOK, gin.H{
		"providers": h.Svc.Providers(),
		"default":   h.Svc.DefaultProviders(),
	})
}

func (h *Handler) writeLookupError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "analysis not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, fallback, nil)
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
