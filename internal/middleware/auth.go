// Package middleware содержит HTTP middleware портала.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	authCookieName = "auth_token"

	// InternalTokenHeader: заголовок с токеном для внутренних вызовов (загрузка заказов, вебхук CRM).
	InternalTokenHeader = "X-Internal-Token"
)

// AuthMiddleware выполняет проверку аутентификации пользователя по подписанному cookie.
// Cookie выпускает внешний сервис авторизации с тем же секретом.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// При пустом секрете генерируется случайный ключ, и ни одна внешняя cookie не пройдёт проверку.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		// crypto/rand.Read не возвращает ошибок: при сбое источника энтропии программа аварийно завершается.
		_, _ = rand.Read(key)
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет идентификатор пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, ok := a.ParseToken(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken возвращает подписанное значение cookie для пользователя.
func (a *AuthMiddleware) IssueToken(userID int64) string {
	idStr := strconv.FormatInt(userID, 10)
	return idStr + "." + a.sign(idStr)
}

// ParseToken проверяет подпись значения cookie и возвращает идентификатор пользователя.
func (a *AuthMiddleware) ParseToken(value string) (int64, bool) {
	idStr, signature, found := strings.Cut(value, ".")
	if !found || strings.Contains(signature, ".") {
		return 0, false
	}

	if !hmac.Equal([]byte(signature), []byte(a.sign(idStr))) {
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func (a *AuthMiddleware) sign(idStr string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(idStr))
	return hex.EncodeToString(mac.Sum(nil))
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// InternalToken пропускает только запросы с верным заголовком X-Internal-Token.
// Пустой токен закрывает внутренние маршруты полностью.
func InternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(InternalTokenHeader)
			if token == "" || !hmac.Equal([]byte(got), []byte(token)) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
