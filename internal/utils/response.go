package utils

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response defines the standard API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    Meta        `json:"meta"`
}

// ErrorInfo provides details for error responses. Field names the offending
// input when the error is about one field; Retryable tells the client the
// same request may succeed later.
type ErrorInfo struct {
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Meta contains request-scoped metadata.
type Meta struct {
	RequestID  string      `json:"requestId"`
	Timestamp  string      `json:"timestamp"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// Success writes a success response with the standard envelope.
func Success(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Response{
		Success: true,
		Code:    code,
		Message: message,
		Data:    data,
		Meta:    newMeta(c),
	})
}

// SuccessWithPagination writes a success response with pagination metadata.
func SuccessWithPagination(c *gin.Context, code int, message string, data interface{}, page, limit, totalItems int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	totalPages := (totalItems + limit - 1) / limit

	meta := newMeta(c)
	meta.Pagination = &Pagination{
		Page:       page,
		Limit:      limit,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
	c.JSON(code, Response{
		Success: true,
		Code:    code,
		Message: message,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes an error response with the standard envelope.
func Error(c *gin.Context, code int, errCode, message string) {
	writeError(c, code, ErrorInfo{Code: errCode, Message: message})
}

// ErrorWithField writes a validation error that names the offending input field.
func ErrorWithField(c *gin.Context, code int, errCode, field, message string) {
	writeError(c, code, ErrorInfo{Code: errCode, Field: field, Message: message})
}

// RetryableError writes an error response telling the client the request may be resubmitted.
func RetryableError(c *gin.Context, code int, errCode, message string) {
	writeError(c, code, ErrorInfo{Code: errCode, Message: message, Retryable: true})
}

func writeError(c *gin.Context, code int, info ErrorInfo) {
	c.JSON(code, Response{
		Success: false,
		Code:    code,
		Message: info.Message,
		Error:   &info,
		Meta:    newMeta(c),
	})
}

func newMeta(c *gin.Context) Meta {
	return Meta{RequestID: getRequestID(c), Timestamp: NowISO()}
}

func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return uuid.New().String()[:8]
}

// manila is the fixed +08:00 zone used for timestamps shown to residents.
var manila = time.FixedZone("PHT", 8*3600)

// NowISO returns the current time in ISO 8601 format in Philippine time.
func NowISO() string {
	return time.Now().In(manila).Format(time.RFC3339)
}
