package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/bytedance/sonic"
)

const _maxBodyBytes = 1 << 16

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		h.logger.Errorf("%s: can't marshal response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(raw); err != nil {
		h.logger.Debugf("%s: can't write response", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	h.writeJSON(w, statusCode, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, model.ErrInsufficientShares):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_SHARES"
	case errors.Is(err, model.ErrNoSuchPosition):
		return http.StatusUnprocessableEntity, "NO_SUCH_POSITION"
	case errors.Is(err, model.ErrAccountNotFound):
		return http.StatusNotFound, "ACCOUNT_NOT_FOUND"
	case errors.Is(err, model.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable, "QUOTE_UNAVAILABLE"
	case errors.Is(err, model.ErrConcurrentModification):
		return http.StatusConflict, "CONCURRENT_MODIFICATION"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s: %s %s failed", err, r.Method, r.URL.Path)
		message = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	h.writeError(w, status, code, message)
}

func decodeBody(r *http.Request, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, _maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: can't read body", model.ErrInvalidInput)
	}
	if len(raw) > _maxBodyBytes {
		return fmt.Errorf("%w: body is too large", model.ErrInvalidInput)
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: malformed json body", model.ErrInvalidInput)
	}
	return nil
}
