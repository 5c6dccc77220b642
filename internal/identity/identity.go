package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bullion/compliance-service/internal/domain"
)

// ManagerRole grants management approval authority
const ManagerRole = "compliance_manager"

// ErrInvalidToken is returned for missing, malformed or expired tokens
var ErrInvalidToken = errors.New("invalid token")

// Resolver turns a bearer token into the acting staff member
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Actor, error)
}

// Claims carried by admin session tokens
type Claims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens issued by the admin backend
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver creates a resolver for tokens signed with secret
func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

// Resolve validates the token and builds the actor from its claims
func (r *JWTResolver) Resolve(ctx context.Context, token string) (domain.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	staffID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: subject is not a staff id", ErrInvalidToken)
	}

	return domain.Actor{
		StaffID:   staffID,
		Name:      claims.Name,
		Email:     claims.Email,
		IsManager: slices.Contains(claims.Roles, ManagerRole),
	}, nil
}

// Issue signs a token for actor; used by tooling and tests
func (r *JWTResolver) Issue(actor domain.Actor, ttl time.Duration, now time.Time) (string, error) {
	roles := []string{"compliance_officer"}
	if actor.IsManager {
		roles = append(roles, ManagerRole)
	}
	claims := Claims{
		Name:  actor.Name,
		Email: actor.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.StaffID.String(),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

type actorKey struct{}

// WithActor stores the resolved actor on the context
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}
