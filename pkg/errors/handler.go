package errors

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error     bool   `json:"error"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
	// StackTrace is only filled in debug mode
	StackTrace string `json:"stack_trace,omitempty"`
}

// ErrorHandler turns errors into JSON responses and logs them
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

// NewErrorHandler creates a new error handler. In debug mode responses carry
// the cause of internal errors and the stack trace.
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle writes the response for err. AppErrors keep their status; anything
// else is a 500 whose message is hidden outside debug mode.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	response := h.newResponse(r)
	appErr := GetAppError(err)
	if appErr == nil {
		response.Type = string(ErrorTypeInternal)
		response.Message = "An internal error occurred"
		if h.debug {
			response.Message = err.Error()
		}
		h.logger.Error("Unhandled error", append(h.requestFields(r, response, http.StatusInternalServerError), zap.Error(err))...)
		h.sendJSON(w, http.StatusInternalServerError, response)
		return
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	response.Type = string(appErr.Type)
	response.Message = appErr.Message
	response.Code = appErr.Code
	if h.debug {
		response.StackTrace = appErr.StackTrace
	}
	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
	}

	h.logAppError(r, response, appErr, status)
	h.sendJSON(w, status, response)
}

// HandleStatus writes an error response for routing failures that carry no
// error value
func (h *ErrorHandler) HandleStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	response := h.newResponse(r)
	response.Type = string(statusErrorType(status))
	response.Message = message

	h.logger.Warn("HTTP error", append(h.requestFields(r, response, status), zap.String("message", message))...)
	h.sendJSON(w, status, response)
}

// Middleware recovers panics into 500 responses
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *ErrorHandler) newResponse(r *http.Request) ErrorResponse {
	requestID := chimiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get("X-Request-ID")
	}

	var traceID string
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return ErrorResponse{Error: true, RequestID: requestID, TraceID: traceID}
}

func (h *ErrorHandler) requestFields(r *http.Request, response ErrorResponse, status int) []zap.Field {
	return []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", response.RequestID),
		zap.String("trace_id", response.TraceID),
	}
}

// logAppError logs server-side failures as errors and caller mistakes as
// warnings
func (h *ErrorHandler) logAppError(r *http.Request, response ErrorResponse, err *AppError, status int) {
	fields := append(h.requestFields(r, response, status), zap.String("error_type", string(err.Type)))
	if err.Code != "" {
		fields = append(fields, zap.String("error_code", err.Code))
	}
	if err.Cause != nil {
		fields = append(fields, zap.Error(err.Cause))
	}

	if status >= 500 {
		h.logger.Error(err.Message, fields...)
		return
	}
	h.logger.Warn(err.Message, fields...)
}

func (h *ErrorHandler) sendJSON(w http.ResponseWriter, status int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}

func statusErrorType(status int) ErrorType {
	switch status {
	case http.StatusBadRequest:
		return ErrorTypeValidation
	case http.StatusUnauthorized:
		return ErrorTypeUnauthorized
	case http.StatusForbidden:
		return ErrorTypeForbidden
	case http.StatusNotFound:
		return ErrorTypeNotFound
	case http.StatusMethodNotAllowed:
		return ErrorTypeMethodNotAllowed
	default:
		return ErrorTypeInternal
	}
}
