package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"codevault/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
)

// The transport consumes an actor identity (id + role) from a signed bearer
// token. Minting tokens is someone else's job; this layer only verifies and
// extracts.

type ActorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthManager struct {
	secret []byte
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret)}
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (model.Actor, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return model.Actor{}, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (model.Actor, error) {
	claims := &ActorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return model.Actor{}, errors.New("invalid token")
	}
	role := model.Role(claims.Role)
	if role != model.RoleAdmin && role != model.RoleIssuer {
		return model.Actor{}, errors.New("unknown role")
	}
	if claims.Subject == "" {
		return model.Actor{}, errors.New("missing subject")
	}
	return model.Actor{ID: claims.Subject, Role: role}, nil
}

type actorCtxKey struct{}

func withActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// actorFrom returns the authenticated actor placed by the auth middleware.
func actorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(model.Actor)
	return a, ok
}
