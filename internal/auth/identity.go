package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Identity is the authenticated caller of a request or socket.
type Identity struct {
	UserID string
	Role   string
}

func (id Identity) IsAdmin() bool { return strings.EqualFold(id.Role, "ADMIN") }

// Authenticator turns an extracted token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

type TokenOptions struct {
	Header       string
	BearerPrefix string
	QueryKey     string
}

// Resolver extracts the token from a request and authenticates it.
type Resolver struct {
	Opt  TokenOptions
	Auth Authenticator
}

func (r *Resolver) Resolve(req *http.Request) (Identity, error) {
	tok := ExtractToken(req, r.Opt.Header, r.Opt.BearerPrefix, r.Opt.QueryKey)
	if tok == "" {
		// legacy socket clients send the bare user id
		if _, trust := r.Auth.(TrustAuthenticator); trust {
			tok = strings.TrimSpace(req.URL.Query().Get("userId"))
		}
	}
	if tok == "" {
		return Identity{}, ErrUnauthorized
	}
	id, err := r.Auth.Authenticate(req.Context(), tok)
	if err != nil {
		return Identity{}, err
	}
	if id.UserID == "" {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}

type Options struct {
	Mode        string
	Token       TokenOptions
	RedisPrefix string
	JWTSecret   string
	JWTIssuer   string
}

// NewResolver picks the authenticator for mode: session, jwt or trust.
func NewResolver(opt Options, rdb redis.UniversalClient) (*Resolver, error) {
	var a Authenticator
	switch strings.ToLower(opt.Mode) {
	case "", "session":
		if rdb == nil {
			return nil, errors.New("auth: session mode requires redis")
		}
		a = &SessionAuthenticator{Sessions: NewSessionStore(rdb, opt.RedisPrefix, 0)}
	case "jwt":
		if opt.JWTSecret == "" {
			return nil, errors.New("auth: jwt mode requires a secret")
		}
		a = &JWTAuthenticator{Secret: []byte(opt.JWTSecret), Issuer: opt.JWTIssuer}
	case "trust":
		a = TrustAuthenticator{}
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", opt.Mode)
	}
	return &Resolver{Opt: opt.Token, Auth: a}, nil
}

// TrustAuthenticator accepts the presented value as the user id. Only for
// deployments where an upstream proxy already authenticated the caller.
type TrustAuthenticator struct{}

func (TrustAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: token}, nil
}
