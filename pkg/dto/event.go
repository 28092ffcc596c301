package dto

import "github.com/google/uuid"

type RecognitionEventResponse struct {
	ID          uuid.UUID `json:"id"`
	Outcome     string    `json:"outcome"`
	Label       string    `json:"label"`
	Email       *string   `json:"email"`
	Distance    *float64  `json:"distance,omitempty"`
	Confidence  string    `json:"confidence"`
	Transition  string    `json:"transition"`
	Date        string    `json:"date"`
	CheckIn     string    `json:"check_in"`
	CheckOut    string    `json:"check_out"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
	OccurredAt  string    `json:"occurred_at"`
}

type RecognitionEventListResponse struct {
	Events []RecognitionEventResponse `json:"events"`
	Total  int                        `json:"total"`
}

type RecognitionEventQuery struct {
	Date    string `form:"date"`
	Outcome string `form:"outcome"`
	Email   string `form:"email"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

// WSEvent is a WebSocket message for real-time recognition delivery.
type WSEvent struct {
	Type string                   `json:"type"` // recognition
	Data RecognitionEventResponse `json:"data"`
}
