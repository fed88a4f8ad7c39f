package middleware

import (
	"net/http"
	"strings"

	"github.com/mharburg8/talk-to-your-inner-child/internal/auth"
	"github.com/mharburg8/talk-to-your-inner-child/pkg/utils"
)

// DevUserHeader 关闭鉴权时用来指定当前用户的请求头。
const DevUserHeader = "X-User-ID"

// Authenticator 从 Bearer 令牌解析用户并写入 context，失败返回 401。
type Authenticator struct {
	secret   []byte
	disabled bool
}

func NewAuthenticator(secret string, disabled bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), disabled: disabled}
}

func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.resolve(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

func (a *Authenticator) resolve(r *http.Request) (string, bool) {
	if a.disabled {
		id := strings.TrimSpace(r.Header.Get(DevUserHeader))
		return id, id != ""
	}

	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	userID, err := auth.UserIDFromToken(strings.TrimSpace(token), a.secret)
	if err != nil {
		return "", false
	}
	return userID, true
}
