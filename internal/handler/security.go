package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// authorize authenticates the request by the HMAC-SHA256 of its API key and
// checks the key was granted scope. The key is stored in the request context
// so audit events can name the caller.
func (h *Handler) authorize(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !info.HasScope(scope) {
			writeError(w, http.StatusForbidden, "api key lacks scope "+scope)
			return
		}
		ctx := auth.WithKey(r.Context(), info)
		ctx = zctx.With(ctx, zap.String("api_key", info.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) authenticate(r *http.Request) (*auth.APIKeyInfo, error) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		return nil, errors.New("missing api key")
	}

	hexHash := auth.HashKey(key, h.pepper)
	info, err := h.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		if !errors.Is(err, auth.ErrKeyNotFound) {
			zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
		}
		return nil, errors.Wrap(err, "find api key")
	}

	// The stored row must match the computed hash byte for byte.
	computed, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode computed hash")
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored hash")
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, errors.New("hash mismatch")
	}
	return info, nil
}
