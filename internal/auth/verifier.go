package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL defines the fallback validity period for issued tokens.
const DefaultTokenTTL = 24 * time.Hour

// Verification failure reasons, surfaced to the middleware which normalises
// them to an authentication error response.
var (
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid signature")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrClaimMismatch    = errors.New("auth: issuer or audience mismatch")
)

// Config bundles the settings required to build a Verifier.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TokenTTL time.Duration
	Clock    func() time.Time
}

// Claims represents the custom claims embedded in issued tokens. Role is
// carried as a boolean: a missing or false `tch` claim means student.
type Claims struct {
	Username  string `json:"username"`
	IsTeacher bool   `json:"tch,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueInput holds the parameters used when minting a token for a profile.
type IssueInput struct {
	Username string
	Role     Role
	TenantID *uuid.UUID
}

// Verifier validates bearer tokens and extracts identity claims. It is a pure
// function of token, configured secret and current time.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewVerifier constructs a Verifier from configuration.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret must be provided")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &Verifier{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      now,
	}, nil
}

// Issue mints a signed token for a freshly claimed or existing profile.
func (v *Verifier) Issue(input IssueInput) (string, error) {
	if input.Username == "" {
		return "", errors.New("auth: username is required")
	}

	now := v.now()
	claims := &Claims{
		Username:  input.Username,
		IsTeacher: input.Role == RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.Username,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	if input.TenantID != nil {
		claims.TenantID = input.TenantID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a signed token, returning the identity it
// carries. Failures map onto the package sentinel errors.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrClaimMismatch
	}
	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return nil, ErrClaimMismatch
	}
	if claims.Username == "" {
		return nil, ErrMalformedToken
	}

	identity := &Identity{
		Username: claims.Username,
		Role:     RoleStudent,
	}
	if claims.IsTeacher {
		identity.Role = RoleTeacher
	}
	if claims.TenantID != "" {
		tenant, parseErr := uuid.Parse(claims.TenantID)
		if parseErr != nil {
			return nil, ErrMalformedToken
		}
		identity.TenantID = &tenant
	}

	return identity, nil
}

// OptionalVerify returns the anonymous identity when no token is supplied,
// but still rejects a malformed or expired token that was presented.
func (v *Verifier) OptionalVerify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		anon := Anonymous
		return &anon, nil
	}
	return v.Verify(tokenString)
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func containsAudience(audience jwt.ClaimStrings, expected string) bool {
	for _, aud := range audience {
		if aud == expected {
			return true
		}
	}
	return false
}
