package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/pkg/dto"
)

const snapshotPrefix = "attendance/"

type EventQuerier interface {
	QueryRecognitionEvents(ctx context.Context, q models.RecognitionEventQuery) ([]models.RecognitionEvent, int, error)
}

type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type RecognitionHandler struct {
	events    EventQuerier
	snapshots ObjectGetter
	loc       *time.Location
}

// NewRecognitionHandler serves the audit trail. snapshots may be nil.
func NewRecognitionHandler(events EventQuerier, snapshots ObjectGetter, loc *time.Location) *RecognitionHandler {
	return &RecognitionHandler{events: events, snapshots: snapshots, loc: loc}
}

var knownOutcomes = map[models.Outcome]bool{
	models.OutcomeMatched:    true,
	models.OutcomeUnknown:    true,
	models.OutcomeNoFace:     true,
	models.OutcomeUnresolved: true,
	models.OutcomeNotMarked:  true,
}

// ParseOutcome accepts "" (no filter) or one of the recognition outcomes.
func ParseOutcome(s string) (models.Outcome, bool) {
	o := models.Outcome(strings.ToLower(strings.TrimSpace(s)))
	return o, o == "" || knownOutcomes[o]
}

func (h *RecognitionHandler) List(c *gin.Context) {
	var req dto.RecognitionEventQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	q := models.RecognitionEventQuery{Email: req.Email, Limit: req.Limit, Offset: req.Offset}
	if req.Date != "" {
		d, err := time.Parse(models.DateLayout, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
		q.Date = &d
	}
	outcome, ok := ParseOutcome(req.Outcome)
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown outcome " + req.Outcome})
		return
	}
	q.Outcome = outcome

	events, total, err := h.events.QueryRecognitionEvents(c.Request.Context(), q)
	if err != nil {
		observability.LoggerFrom(c.Request.Context()).Error("query recognitions", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "recognitions could not be listed"})
		return
	}

	resp := make([]dto.RecognitionEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, RecognitionEventResponse(e, h.loc))
	}
	c.JSON(http.StatusOK, dto.RecognitionEventListResponse{Events: resp, Total: total})
}

// Snapshot proxies a stored probe image from MinIO.
func (h *RecognitionHandler) Snapshot(c *gin.Context) {
	key := c.Query("key")
	if !strings.HasPrefix(key, snapshotPrefix) || strings.Contains(key, "..") {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid snapshot key"})
		return
	}
	if h.snapshots == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "snapshots are disabled"})
		return
	}

	data, err := h.snapshots.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// RecognitionEventResponse renders e with clock times in loc.
func RecognitionEventResponse(e models.RecognitionEvent, loc *time.Location) dto.RecognitionEventResponse {
	r := dto.RecognitionEventResponse{
		ID:         e.ID,
		Outcome:    string(e.Outcome),
		Label:      e.Label,
		Email:      e.Email,
		Distance:   e.Distance,
		Transition: string(e.Transition),
		Date:       e.Date.Format(models.DateLayout),
		CheckIn:    models.FormatClock(e.CheckIn, loc),
		CheckOut:   models.FormatClock(e.CheckOut, loc),
		OccurredAt: e.OccurredAt.In(loc).Format(time.RFC3339),
	}
	if e.Confidence != nil {
		r.Confidence = matcher.FormatConfidence(*e.Confidence)
	}
	if e.SnapshotKey != "" {
		r.SnapshotURL = "/v1/recognitions/snapshot?key=" + url.QueryEscape(e.SnapshotKey)
	}
	return r
}
