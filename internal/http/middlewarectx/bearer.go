// Package middlewarectx содержит HTTP middleware сервиса биллинга.
//
// BearerSecret закрывает служебные маршруты общим секретом из заголовка
// Authorization. RateLimitMiddleware ограничивает частоту запросов
// на маршрутах, которые вызывает браузер.
package middlewarectx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/response"
)

// BearerSecret возвращает middleware, который сравнивает токен из заголовка
// Authorization с секретом за постоянное время.
//
// Пустой секрет пропускает запросы только при open=true (локальное окружение),
// иначе маршрут закрыт целиком.
func BearerSecret(log *slog.Logger, secret string, open bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.BearerSecret"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if secret == "" {
				if open {
					next.ServeHTTP(w, r)
					return
				}
				log.Error("secret is not configured, rejecting request", slog.String("path", r.URL.Path))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				log.Warn("invalid bearer token")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
