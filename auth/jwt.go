package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuthHeader = errors.New("auth: missing authorization header")
	ErrInvalidAuthScheme = errors.New("auth: authorization header is not a bearer token")
	ErrInvalidToken      = errors.New("auth: token validation failed")
	ErrCallerNotAllowed  = errors.New("auth: caller app id is not allowed")
)

// CallerClaims are the claims a skill host inspects on an inbound
// bot-to-bot call.
type CallerClaims struct {
	// AppID identifies the calling bot.
	AppID string `json:"appid"`
	jwt.RegisteredClaims
}

// JWTValidatorConfig configures inbound caller validation.
type JWTValidatorConfig struct {
	// SigningKey verifies the token signature (HMAC).
	SigningKey []byte `yaml:"signingKey"`
	// Audience must match the token's aud claim; empty skips the check.
	Audience string `yaml:"audience"`
	// Issuer must match the token's iss claim; empty skips the check.
	Issuer string `yaml:"issuer"`
	// AllowedCallers whitelists calling app ids. Empty admits any caller
	// with a valid signature.
	AllowedCallers []string `yaml:"allowedCallers"`
}

// JWTValidator admits or rejects inbound bot-to-bot requests.
type JWTValidator struct {
	cfg     JWTValidatorConfig
	allowed map[string]bool
	parser  *jwt.Parser
}

// NewJWTValidator builds a validator from config.
func NewJWTValidator(cfg JWTValidatorConfig) (*JWTValidator, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("auth: signing key is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	allowed := make(map[string]bool, len(cfg.AllowedCallers))
	for _, id := range cfg.AllowedCallers {
		allowed[id] = true
	}

	return &JWTValidator{
		cfg:     cfg,
		allowed: allowed,
		parser:  jwt.NewParser(opts...),
	}, nil
}

// ValidateAuthHeader validates a raw "Authorization: Bearer ..." header
// value and returns the caller's claims.
func (v *JWTValidator) ValidateAuthHeader(header string) (*CallerClaims, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrMissingAuthHeader
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrInvalidAuthScheme
	}
	return v.ValidateToken(strings.TrimSpace(token))
}

// ValidateToken validates a compact JWT and returns the caller's claims.
func (v *JWTValidator) ValidateToken(tokenString string) (*CallerClaims, error) {
	claims := &CallerClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.cfg.SigningKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(v.allowed) > 0 && !v.allowed[claims.AppID] {
		return nil, fmt.Errorf("%w: %q", ErrCallerNotAllowed, claims.AppID)
	}
	return claims, nil
}
