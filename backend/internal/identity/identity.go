// Package identity turns the opaque credential a client presents at
// handshake time into a typed Identity attached to the request context.
//
// Tokens come from the external identity provider. When a signing secret is
// configured they are verified (HMAC); otherwise they are decoded without
// verification and the resulting Identity is marked as unverified.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AnonymousName is the display name used when a client presents nothing.
const AnonymousName = "Anonymous"

var (
	ErrInvalidToken = errors.New("invalid identity token")
	ErrNoSubject    = errors.New("identity token has no subject")
)

// Identity is who a connection claims to be.
type Identity struct {
	// Subject is the stable key used to recognise a reconnecting client.
	Subject   string
	Name      string
	Email     string
	Verified  bool
	Anonymous bool
}

// Anonymous returns a fresh identity whose subject is unique to the caller,
// so two anonymous clients never collapse into one participant.
func Anonymous() Identity {
	return Identity{
		Subject:   "anon-" + uuid.NewString(),
		Name:      AnonymousName,
		Anonymous: true,
	}
}

// Plain wraps an identity string supplied without a token. An empty string
// or the literal anonymous name is not a stable identity and gets a fresh
// anonymous subject.
func Plain(s string) Identity {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, AnonymousName) {
		return Anonymous()
	}
	return Identity{Subject: s, Name: s}
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier returns a Verifier. An empty secret disables signature checks.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// Verifies reports whether tokens are signature checked.
func (v *Verifier) Verifies() bool {
	return len(v.secret) > 0
}

// Parse resolves a token into an Identity.
func (v *Verifier) Parse(token string) (Identity, error) {
	claims := jwt.MapClaims{}

	if v.Verifies() {
		_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return v.secret, nil
		})
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		if _, _, err := v.parser.ParseUnverified(token, claims); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return Identity{}, ErrNoSubject
	}

	email := stringClaim(claims, "email")
	name := firstNonEmpty(stringClaim(claims, "given_name"), stringClaim(claims, "name"), email, sub)

	return Identity{
		Subject:  sub,
		Name:     name,
		Email:    email,
		Verified: v.Verifies(),
	}, nil
}

// FromRequest builds the identity for a handshake. A token (query parameter
// or bearer header) wins over a plain identity string; with neither, the
// client is anonymous.
func (v *Verifier) FromRequest(r *http.Request) (Identity, error) {
	if token := requestToken(r); token != "" {
		return v.Parse(token)
	}
	return Plain(r.URL.Query().Get("identity")), nil
}

// Middleware resolves the identity before the handler runs and rejects the
// request with 401 when a presented token is unusable.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := v.FromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
