package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type Keys struct {
	Public []string
	Admin  []string
}

// Open reports whether no keys are configured at all (local dev).
func (k Keys) Open() bool { return len(k.Public) == 0 && len(k.Admin) == 0 }

// Role is what a presented key grants. Admin implies read access.
type Role int

const (
	RoleNone Role = iota
	RoleRead
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleAdmin:
		return "admin"
	}
	return "none"
}

type roleKey struct{}

// RoleFrom returns the role resolved for the request, RoleNone if the auth
// middleware did not run.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// hasKey compares against every configured key so timing does not reveal
// which one matched.
func hasKey(given string, set []string) bool {
	if given == "" {
		return false
	}
	match := 0
	for _, k := range set {
		match |= subtle.ConstantTimeCompare([]byte(k), []byte(given))
	}
	return match == 1
}

func (k Keys) resolve(given string) Role {
	switch {
	case k.Open():
		return RoleAdmin
	case hasKey(given, k.Admin):
		return RoleAdmin
	case hasKey(given, k.Public):
		return RoleRead
	}
	return RoleNone
}

// require lets a request through when its key grants at least min. Missing
// keys get 401, keys with too little access get 403.
func require(keys Keys, min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := readAuth(r)
			role := keys.resolve(given)
			// with only public keys set, writes stay open as before
			if min == RoleAdmin && len(keys.Admin) == 0 {
				role = RoleAdmin
			}
			if role >= min {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if given == "" || role == RoleNone {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
		})
	}
}

// RequireAny allows requests that present either a public or admin key.
func RequireAny(keys Keys) func(http.Handler) http.Handler { return require(keys, RoleRead) }

// RequireAdmin only permits requests that present an admin key.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler { return require(keys, RoleAdmin) }
