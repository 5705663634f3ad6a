package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kurisu/squadagent/internal/security"
)

// tokenQueryParam carries the bearer token on WebSocket upgrades, since
// browsers cannot set headers on them.
const tokenQueryParam = "access_token"

// authMiddleware rejects requests without valid Bearer or Basic
// credentials. Every attempt is recorded on auditLogger, which may be nil.
func authMiddleware(cfg AuthConfig, auditLogger *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method, failure := authenticate(cfg, r)
			if failure != "" {
				emitAuthEvent(auditLogger, security.EventAuthFailure, r, failure)
				w.Header().Set("WWW-Authenticate", `Bearer realm="squadagent"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			emitAuthEvent(auditLogger, security.EventAuthSuccess, r, method)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate returns the method that accepted r, or a failure reason.
func authenticate(cfg AuthConfig, r *http.Request) (method, failure string) {
	if cfg.BearerToken != "" {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok && isWebSocketUpgrade(r) {
			token, ok = r.URL.Query().Get(tokenQueryParam), true
		}
		if ok && token != "" && constantTimeEqual(token, cfg.BearerToken) {
			return "bearer", ""
		}
	}

	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
			return "basic", ""
		}
	}

	if r.Header.Get("Authorization") == "" && r.URL.Query().Get(tokenQueryParam) == "" {
		return "", "missing credentials"
	}
	return "", "invalid credentials"
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// emitAuthEvent logs an auth event to the audit logger.
func emitAuthEvent(logger *security.AuditLogger, eventType security.EventType, r *http.Request, detail string) {
	logger.Log(security.AuditEvent{
		Type:   eventType,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
