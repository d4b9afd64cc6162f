package api

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	ctxKeyAccountID ctxKey = "account_id"
)

const _jwtLeeway = 30 * time.Second

// accountID accepts both string and integer ids.
type accountID string

var _claimsJSON = sonic.Config{UseNumber: true}.Froze()

func (a *accountID) UnmarshalJSON(data []byte) error {
	var v any
	if err := _claimsJSON.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: can't decode account id", err)
	}
	switch id := v.(type) {
	case nil:
		return nil
	case string:
		*a = accountID(id)
		return nil
	case json.Number:
		if _, err := id.Int64(); err != nil {
			return fmt.Errorf("account id %s is not an integer", id)
		}
		*a = accountID(id.String())
		return nil
	default:
		return errors.New("account id is neither a string nor an integer")
	}
}

type accountClaims struct {
	ID accountID `json:"id"`
	jwt.RegisteredClaims
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// parseAccountID verifies an HS256 token and returns the account it was issued for,
// taken from the id claim or, without one, from sub.
func (h *Handler) parseAccountID(raw string) (string, error) {
	claims := &accountClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(_jwtLeeway))
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}

	id := cmp.Or(string(claims.ID), claims.Subject)
	if id == "" {
		return "", errors.New("token carries no account id")
	}
	return id, nil
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		id, err := h.parseAccountID(raw)
		if err != nil {
			h.logger.Debugf("%s: rejected token", err)
			h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyAccountID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyAccountID).(string)
	return id
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Errorf("panic recovered: %v, %s %s, request %s",
					rec, r.Method, r.URL.Path, middleware.GetReqID(r.Context()))
				h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		log := h.logger.With(
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", recorder.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
		switch {
		case recorder.statusCode >= 500:
			log.Errorf("http request completed")
		case recorder.statusCode >= 400:
			log.Warnf("http request completed")
		default:
			log.Debugf("http request completed")
		}
	})
}
