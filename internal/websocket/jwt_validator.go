package websocket

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// ErrInvalidToken is returned when JWT validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrPersonNotFound is returned when the caller identity lookup fails.
var ErrPersonNotFound = errors.New("person not found")

// PersonLookup resolves the PersonID backing an Auth0 subject, the same
// identity the HTTP middleware attaches to a request context.
type PersonLookup interface {
	GetPersonByAuth0ID(auth0ID string) (personID string, err error)
}

// CustomClaims contains the custom claims from the Auth0 JWT.
type CustomClaims struct{}

// Validate implements validator.CustomClaims.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// Auth0JWTValidator validates Auth0 JWT tokens for WebSocket connections.
type Auth0JWTValidator struct {
	validator    *validator.Validator
	personLookup PersonLookup
}

// NewAuth0JWTValidator creates a new Auth0JWTValidator.
func NewAuth0JWTValidator(domain, audience string, personLookup PersonLookup) (*Auth0JWTValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &Auth0JWTValidator{
		validator:    jwtValidator,
		personLookup: personLookup,
	}, nil
}

// ValidateToken validates a JWT token and returns the associated
// PersonID (as a string, the EntityID wire form).
func (v *Auth0JWTValidator) ValidateToken(token string) (personID string, err error) {
	ctx := context.Background()

	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return "", ErrInvalidToken
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	auth0ID := validatedClaims.RegisteredClaims.Subject

	pid, err := v.personLookup.GetPersonByAuth0ID(auth0ID)
	if err != nil {
		return "", ErrPersonNotFound
	}

	return pid, nil
}
