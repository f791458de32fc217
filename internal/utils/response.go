package utils

import "time"

// APIResponse is the envelope the eco-tiket report dashboards consume:
// a "success"/"error" status string, a human-readable message, and the
// report rows under data.
type APIResponse struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Error    string      `json:"error,omitempty"`
	ServedAt time.Time   `json:"served_at"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Status:   "success",
		Message:  message,
		Data:     data,
		ServedAt: time.Now(),
	}
}

func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{
		Status:   "error",
		Message:  message,
		Error:    detail,
		ServedAt: time.Now(),
	}
}
