package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/scribecat/internal/observe"
)

// defaultTokenTTL is used when the client does not ask for a lifetime.
const defaultTokenTTL = 60 * time.Second

// TokenMinter issues short-lived credentials that let a browser stream audio
// to the transcription service directly.
type TokenMinter interface {
	TemporaryToken(ctx context.Context, ttl time.Duration) (string, error)
}

type tokenResponse struct {
	Token            string `json:"token"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	Success          bool   `json:"success"`
}

// handleRealtimeToken handles GET /realtimeToken?expires_in_seconds=N.
func (s *Server) handleRealtimeToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Tokens == nil {
		writeError(w, http.StatusInternalServerError, "no transcription provider with token support configured")
		return
	}
	ttl := defaultTokenTTL
	if v := r.URL.Query().Get("expires_in_seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "expires_in_seconds must be a positive integer")
			return
		}
		ttl = time.Duration(n) * time.Second
	}

	ctx := r.Context()
	token, err := s.cfg.Tokens.TemporaryToken(ctx, ttl)
	if err != nil {
		observe.Logger(ctx).Error("realtime token: mint failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:            token,
		ExpiresInSeconds: int(ttl / time.Second),
		Success:          true,
	})
}
