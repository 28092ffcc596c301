package dto

// RecognizeRequest is the body of POST /v1/attendance/recognize. Image is
// base64, optionally as a data URL.
type RecognizeRequest struct {
	Image string `json:"image" binding:"required"`
}

// RecognizeResponse keeps the field set the kiosk page reads. Email is null
// unless the face resolved to an account; Confidence is "" unless matched.
type RecognizeResponse struct {
	Username   string  `json:"username"`
	Email      *string `json:"email"`
	Confidence string  `json:"confidence"`
	CheckIn    string  `json:"check_in"`
	CheckOut   string  `json:"check_out"`
	Role       string  `json:"role"`
}

type AttendanceResponse struct {
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	Date     string `json:"date"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type AttendanceListResponse struct {
	Date        string               `json:"date"`
	Attendances []AttendanceResponse `json:"attendances"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
