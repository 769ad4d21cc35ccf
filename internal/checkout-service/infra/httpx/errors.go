package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/httpclient"
)

var kindStatus = map[entity.Kind]int{
	entity.KindValidation:      http.StatusBadRequest,
	entity.KindState:           http.StatusBadRequest,
	entity.KindUnauthenticated: http.StatusUnauthorized,
	entity.KindForbidden:       http.StatusForbidden,
	entity.KindNotFound:        http.StatusNotFound,
	entity.KindConflict:        http.StatusConflict,
	entity.KindGateway:         http.StatusBadGateway,
	entity.KindInternal:        http.StatusInternalServerError,
}

func statusFor(e *entity.Error) int {
	if s, ok := kindStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status of its kind. Errors without a code
// are logged and reported as INTERNAL_ERROR.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := entity.AsError(err)
	if e == nil {
		slog.ErrorContext(r.Context(), "unhandled error", "error", err)
		e = entity.ErrInternal
	}
	status := statusFor(e)

	resp := ErrorResponse{Error: e.Message, Code: e.Code}
	if e.Err != nil {
		resp.Detail = upstreamDetail(e.Err)
	}
	if status >= http.StatusInternalServerError && e.Kind == entity.KindInternal {
		resp.Detail = ""
	}
	if len(e.Compensations) > 0 {
		c := &CompensationResponse{Code: entity.ErrCompensationFailed.Code}
		for _, f := range e.Compensations {
			fr := CompensationFailureResponse{Step: f.Step, Reference: f.Reference}
			if f.Err != nil {
				fr.Error = f.Err.Error()
			}
			c.Failures = append(c.Failures, fr)
		}
		resp.Compensation = c
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "code", e.Code, "error", err)
	}
	writeJSON(w, status, resp)
}

// upstreamDetail prefers the external service's own message.
func upstreamDetail(err error) string {
	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) {
		if m, ok := apiErr.Payload.(map[string]any); ok {
			for _, k := range []string{"detail", "message", "error", "mensaje"} {
				if s, ok := m[k].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return err.Error()
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:  entity.ErrInvalidData.Message,
		Code:   entity.ErrInvalidData.Code,
		Detail: detail,
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: entity.ErrInvalidData.Message, Code: entity.ErrInvalidData.Code}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		resp.Fields = make(map[string]string, len(ve))
		for _, fe := range ve {
			resp.Fields[fe.Namespace()] = fe.Tag()
		}
	} else {
		resp.Detail = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}
