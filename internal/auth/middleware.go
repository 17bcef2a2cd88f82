package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/salesdesk/salesdesk/internal/platform/httpx"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// Authenticate resolves a Bearer token into a principal on the request
// context. Requests without an Authorization header pass through untouched;
// route guards reject them where a principal is required.
func Authenticate(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				httpx.RespondError(w, fmt.Errorf("%w: invalid authorization header format", shared.ErrUnauthorized))
				return
			}
			principal, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
