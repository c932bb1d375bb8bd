package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/authn"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, identity *authn.Identity)

// requireAuth rejects requests without a verifiable bearer token.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := authn.BearerToken(r)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}

		identity, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, authn.ErrUnauthorized) {
				s.writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			s.logger.Error("token verification failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		next(w, r, identity)
	}
}

// identify resolves the rate-limit identifier for endpoints that accept
// anonymous callers: the authenticated user when a valid token is present,
// the caller's network origin otherwise.
func (s *Server) identify(r *http.Request) (identifier string, identity *authn.Identity) {
	if token := authn.BearerToken(r); token != "" {
		if id, err := s.verifier.Verify(r.Context(), token); err == nil {
			return id.UserID, id
		}
	}
	return authn.FallbackIdentifier(r), nil
}
