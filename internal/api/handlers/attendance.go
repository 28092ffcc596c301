package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/recognition"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/pkg/dto"
)

// RoleUnknown is reported when the face did not resolve to an account.
const RoleUnknown = "Unknown"

type Recognizer interface {
	RecognizeBase64(ctx context.Context, payload string) (*recognition.Result, error)
}

type AttendanceLister interface {
	Today(ctx context.Context, now time.Time) ([]models.AttendanceRecord, error)
	ListByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error)
	Location() *time.Location
}

type AttendanceHandler struct {
	recognizer Recognizer
	ledger     AttendanceLister
	now        func() time.Time
}

func NewAttendanceHandler(recognizer Recognizer, ledger AttendanceLister) *AttendanceHandler {
	return &AttendanceHandler{recognizer: recognizer, ledger: ledger, now: time.Now}
}

func (h *AttendanceHandler) Recognize(c *gin.Context) {
	var req dto.RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "image is required"})
		return
	}

	res, err := h.recognizer.RecognizeBase64(c.Request.Context(), req.Image)
	switch {
	case errors.Is(err, recognition.ErrInvalidPayload), errors.Is(err, vision.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid image"})
		return
	case err != nil:
		observability.LoggerFrom(c.Request.Context()).Error("recognition failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "attendance could not be recorded"})
		return
	}

	c.JSON(http.StatusOK, RecognizeResponse(res, h.ledger.Location()))
}

// RecognizeResponse renders res in the kiosk's shape with clock times in loc.
func RecognizeResponse(res *recognition.Result, loc *time.Location) dto.RecognizeResponse {
	resp := dto.RecognizeResponse{
		Username: res.Label,
		Email:    res.Email(),
		Role:     RoleUnknown,
	}
	if res.Identity != nil {
		resp.Role = string(res.Identity.Role)
		if res.Match.Matched {
			resp.Confidence = matcher.FormatConfidence(res.Match.Confidence)
		}
	}
	if res.Mark != nil {
		resp.CheckIn = models.FormatClock(res.Mark.Record.CheckIn, loc)
		resp.CheckOut = models.FormatClock(res.Mark.Record.CheckOut, loc)
	}
	return resp
}

// Today lists the records of the current calendar day.
func (h *AttendanceHandler) Today(c *gin.Context) {
	now := h.now()
	recs, err := h.ledger.Today(c.Request.Context(), now)
	if err != nil {
		observability.LoggerFrom(c.Request.Context()).Error("list today's attendance", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "attendance could not be listed"})
		return
	}
	c.JSON(http.StatusOK, h.listResponse(models.DateOf(now, h.ledger.Location()), recs))
}

// ByDate lists the records of ?date=YYYY-MM-DD, today when omitted.
func (h *AttendanceHandler) ByDate(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		h.Today(c)
		return
	}
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "date must be YYYY-MM-DD"})
		return
	}

	recs, err := h.ledger.ListByDate(c.Request.Context(), date)
	if err != nil {
		observability.LoggerFrom(c.Request.Context()).Error("list attendance", "date", raw, "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "attendance could not be listed"})
		return
	}
	c.JSON(http.StatusOK, h.listResponse(date, recs))
}

func (h *AttendanceHandler) listResponse(date time.Time, recs []models.AttendanceRecord) dto.AttendanceListResponse {
	loc := h.ledger.Location()
	out := dto.AttendanceListResponse{
		Date:        date.Format(models.DateLayout),
		Attendances: make([]dto.AttendanceResponse, 0, len(recs)),
	}
	for _, r := range recs {
		out.Attendances = append(out.Attendances, dto.AttendanceResponse{
			Email:    r.Email,
			Role:     string(r.Role),
			Date:     r.Date.Format(models.DateLayout),
			CheckIn:  models.FormatClock(r.CheckIn, loc),
			CheckOut: models.FormatClock(r.CheckOut, loc),
		})
	}
	return out
}
