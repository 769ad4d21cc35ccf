package middlewares

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/reqctx"
)

// AttachRequestContext copies the request id, the caller identity asserted
// by the gateway headers and the idempotency key into the context. It must
// run after middleware.RequestID.
func AttachRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(reqctx.HeaderXRequestId, requestID)
		}

		ctx := reqctx.WithRequestID(r.Context(), requestID)
		ctx = reqctx.WithIdentity(ctx, identityFrom(r))
		if key := strings.TrimSpace(r.Header.Get(reqctx.HeaderIdempotencyKey)); key != "" {
			ctx = reqctx.WithIdempotencyKey(ctx, key)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) reqctx.Identity {
	var id reqctx.Identity
	if uid, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(reqctx.HeaderXUserId)), 10, 64); err == nil && uid > 0 {
		id.UserID = uid
	}
	if staff, err := strconv.ParseBool(r.Header.Get(reqctx.HeaderXUserStaff)); err == nil {
		id.Staff = staff && id.UserID > 0
	}
	if token, ok := strings.CutPrefix(r.Header.Get(reqctx.HeaderAuthorization), "Bearer "); ok {
		id.Token = strings.TrimSpace(token)
	}
	return id
}
