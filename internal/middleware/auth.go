// Package middleware содержит HTTP middleware сервиса заказов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/comanda/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	authCookieName = "terminal_token"
	authCookieTTL  = 16 * time.Hour
)

// AuthMiddleware проверяет подписанный токен терминала: роль и идентификатор сотрудника.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт AuthMiddleware. При пустом секрете генерируется случайный ключ,
// и токены перестают действовать после перезапуска.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware принимает токен из cookie или заголовка Authorization: Bearer
// и добавляет сотрудника в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			cookie, err := r.Cookie(authCookieName)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			token = cookie.Value
		}

		actor, ok := a.parseToken(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Token подписывает сотрудника и возвращает токен терминала.
func (a *AuthMiddleware) Token(actor model.Actor) string {
	payload := string(actor.Role) + ":" + actor.ID
	return payload + "." + a.sign(payload)
}

// SetAuthCookie устанавливает cookie с токеном терминала.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, actor model.Actor) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.Token(actor),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseToken(token string) (model.Actor, bool) {
	dot := strings.LastIndex(token, ".")
	if dot < 0 {
		return model.Actor{}, false
	}
	payload, signature := token[:dot], token[dot+1:]

	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return model.Actor{}, false
	}

	role, id, ok := strings.Cut(payload, ":")
	if !ok || id == "" {
		return model.Actor{}, false
	}
	actor := model.Actor{ID: id, Role: model.Role(role)}
	if !actor.Role.Valid() {
		return model.Actor{}, false
	}

	return actor, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetActorFromContext извлекает сотрудника из контекста запроса.
func GetActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}
