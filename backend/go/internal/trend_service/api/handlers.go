package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"Trendline/backend/go/internal/entity"
	"Trendline/backend/go/internal/merger"
	"Trendline/backend/go/internal/metrics"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/internal/trend_service/service"
	"Trendline/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// API provides handlers for the trend service.
type API struct {
	entities  *entity.Service
	dashboard *service.Dashboard
	activity  *service.ActivityService
	stylist   *service.Stylist
	checks    map[string]HealthCheck
	logger    *logger.Logger
}

// HealthCheck checks one backing dependency.
type HealthCheck func(ctx context.Context) error

// NewAPI creates a new API handler.
func NewAPI(entities *entity.Service, dashboard *service.Dashboard, activity *service.ActivityService, stylist *service.Stylist, log *logger.Logger) *API {
	return &API{
		entities:  entities,
		dashboard: dashboard,
		activity:  activity,
		stylist:   stylist,
		checks:    map[string]HealthCheck{},
		logger:    log.WithField("component", "api"),
	}
}

// AddHealthCheck registers a dependency check reported by /healthz.
func (a *API) AddHealthCheck(name string, check HealthCheck) {
	a.checks[name] = check
}

func refFromPath(c *gin.Context) models.EntityRef {
	return models.EntityRef{Kind: models.EntityKind(c.Param("kind")), ID: c.Param("id")}
}

func (a *API) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrNotFound), errors.Is(err, entity.ErrUnknownKind):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrBadParams), errors.Is(err, service.ErrInvalidActivity), errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, merger.ErrMergeFailed), errors.Is(err, service.ErrStylistFailed):
		status = http.StatusBadGateway
	case errors.Is(err, state.ErrLockTimeout), errors.Is(err, state.ErrConflict):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		a.logger.WithErr("api_error", err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// HealthHandler reports liveness, plus the result of every registered check.
// Any failing check turns the response into a 503.
func (a *API) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	code, status := http.StatusOK, "ok"
	deps := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			code, status = http.StatusServiceUnavailable, "degraded"
			continue
		}
		deps[name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// ListEntitiesHandler lists entity ids of ?kind= (default user).
func (a *API) ListEntitiesHandler(c *gin.Context) {
	kind := models.EntityKind(c.DefaultQuery("kind", string(models.KindUser)))
	if _, ok := a.entities.Registry().Lookup(kind); !ok {
		a.fail(c, entity.ErrUnknownKind)
		return
	}
	ids, err := a.dashboard.List(c.Request.Context(), kind)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "ids": ids})
}

// GetEntityHandler returns one entity with its activity newest first.
func (a *API) GetEntityHandler(c *gin.Context) {
	ref := refFromPath(c)
	if _, ok := a.entities.Registry().Lookup(ref.Kind); !ok {
		a.fail(c, entity.ErrUnknownKind)
		return
	}
	view, err := a.dashboard.Entity(c.Request.Context(), ref)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// InitEntityHandler creates an entity from JSON params. An existing entity is returned as is.
func (a *API) InitEntityHandler(c *gin.Context) {
	var params map[string]string
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		a.logger.WithErr("bind_error", err).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	resp, err := a.entities.Dispatch(c.Request.Context(), entity.Request{Op: entity.OpInit, Ref: refFromPath(c), Params: params})
	if err != nil {
		a.fail(c, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp.State)
}

// ChangesHandler lists tracked entities, most recently changed first.
func (a *API) ChangesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.dashboard.Changes())
}

// ChangeHandler returns the latest diff of one entity.
func (a *API) ChangeHandler(c *gin.Context) {
	ref := refFromPath(c)
	rec, ok := a.dashboard.Change(ref)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not tracked yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entity":          rec.EntityKey,
		"last_poll_at":    rec.LastPollAt,
		"last_changed_at": rec.LastChangedAt,
		"diff":            rec.Diff,
		"diff_text":       rec.Diff.String(),
	})
}

// SubmitActivityHandler records a user interaction.
func (a *API) SubmitActivityHandler(c *gin.Context) {
	var payload struct {
		UserID      string `json:"user_id" binding:"required"`
		Description string `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithErr("bind_error", err).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	ev, err := a.activity.Submit(c.Request.Context(), payload.UserID, payload.Description)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}

// RecommendHandler suggests an outfit for an event and remembers what was suggested.
func (a *API) RecommendHandler(c *gin.Context) {
	var payload struct {
		Event string `json:"event" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithErr("bind_error", err).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	rec, err := a.stylist.Recommend(c.Request.Context(), c.Param("id"), payload.Event)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// NoteHandler explains why a recommended item suits the user.
func (a *API) NoteHandler(c *gin.Context) {
	var payload struct {
		Event          string `json:"event" binding:"required"`
		Recommendation string `json:"recommendation" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithErr("bind_error", err).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	note, err := a.stylist.Note(c.Request.Context(), c.Param("id"), payload.Event, payload.Recommendation)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": note})
}

// MetricsHandler exposes Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(metrics.Handler())
}
