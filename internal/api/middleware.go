package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/models"
)

// contextKey é um tipo privado para evitar colisões de chaves no contexto
type contextKey string

const userContextKey = contextKey("user")

const accessTokenCookie = "access-token"

// credentialFrom procura a credencial no cookie, no header Authorization e,
// por último, no parâmetro `token` (usado no upgrade do websocket).
func credentialFrom(r *http.Request) string {
	if c, err := r.Cookie(accessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware valida a SessionCredential e carrega o usuário
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Obter a credencial
		credential := credentialFrom(r)
		if credential == "" {
			h.respondWithAppError(w, apperr.ErrUnauthenticated)
			return
		}

		// 2. Validar o token
		identity, err := h.guard.Authenticate(r.Context(), credential)
		if err != nil {
			h.respondWithAppError(w, err)
			return
		}

		// 3. Verificar se a identidade ainda existe no registro
		user, err := h.authService.Me(r.Context(), identity)
		if err != nil {
			if errors.Is(err, apperr.ErrUserNotFound) {
				err = apperr.ErrUnauthenticated
			}
			h.respondWithAppError(w, err)
			return
		}

		// 4. Armazenar o usuário no contexto da requisição
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(userContextKey).(*models.User)
	return user, ok && user != nil
}
