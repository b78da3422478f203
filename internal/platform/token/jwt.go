package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/requestcontext"
)

// Claims represents the JWT claims for our access tokens. Kind mirrors the
// actor kinds so the auth middleware can rebuild the actor without a lookup.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	lifetime   time.Duration
}

func NewService(signingKey string, issuer string, lifetime time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		lifetime:   lifetime,
	}
}

// Issue signs a token for the given actor.
func (s *Service) Issue(actor requestcontext.Actor, now time.Time) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Kind: string(actor.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

// Validate parses a token and rebuilds the actor it was issued for.
func (s *Service) Validate(tokenString string) (requestcontext.Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	kind := requestcontext.ActorKind(claims.Kind)
	switch kind {
	case requestcontext.ActorOwner, requestcontext.ActorRecipient, requestcontext.ActorAdmin:
	default:
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return requestcontext.Actor{Kind: kind, Subject: claims.Subject}, nil
}
