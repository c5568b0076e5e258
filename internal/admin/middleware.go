package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrPunder/client-relay-bot/internal/logger"
)

// AuthMiddleware проверяет JWT-токен администратора
type AuthMiddleware struct {
	jwtManager *JWTManager
	logger     logger.Logger
}

// NewAuthMiddleware создает новый middleware для аутентификации
func NewAuthMiddleware(jwtManager *JWTManager, logger logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// Middleware возвращает функцию middleware для проверки JWT-токена.
// Токен принимается из заголовка Authorization или из cookie admin_token.
func (am *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			cookie, err := r.Cookie("admin_token")
			if err != nil {
				http.Error(w, "Требуется аутентификация", http.StatusUnauthorized)
				return
			}
			authHeader = "Bearer " + cookie.Value
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Неверный формат токена", http.StatusUnauthorized)
			return
		}

		claims, err := am.jwtManager.ValidateToken(parts[1])
		if err != nil {
			am.logger.Errorf("Отклонен админский запрос %s %s: %v", r.Method, r.URL.Path, err)
			if errors.Is(err, ErrExpiredToken) {
				http.Error(w, "Срок действия токена истек", http.StatusUnauthorized)
			} else {
				http.Error(w, "Недействительный токен", http.StatusUnauthorized)
			}
			return
		}

		if !claims.IsAdmin {
			http.Error(w, "Доступ запрещен", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
