package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	defaultFormTokenTTL = 60 * time.Minute
	formTokenKeyInfo    = "ticket-survey form-token signing key"
	formTokenKeyLength  = 32

	// ActionSubmitSurvey guards respondent submissions.
	ActionSubmitSurvey = "survey.submit"
	// ActionAdminMutation guards every admin write.
	ActionAdminMutation = "survey.admin"
)

var (
	ErrMissingFormTokenSecret = errors.New("form tokens: signing secret required")
	ErrMissingFormTokenIssuer = errors.New("form tokens: issuer required")
	ErrMissingFormTokenStore  = errors.New("form tokens: redemption store required")
	ErrMissingFormToken       = errors.New("form tokens: token required")
	ErrInvalidFormToken       = errors.New("form tokens: invalid token")
	ErrFormTokenReplayed      = errors.New("form tokens: token already used")
	errMissingSubjectClaim    = errors.New("form tokens: subject required")
	errMissingAction          = errors.New("form tokens: action required")
)

// RedemptionStore remembers redeemed token ids. Redeem reports false when the id was seen before.
type RedemptionStore interface {
	Redeem(ctx context.Context, tokenID string, subject string, expiresAt time.Time) (bool, error)
}

// FormTokenIssuerConfig configures single-use form tokens.
type FormTokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Store         RedemptionStore
	Clock         func() time.Time
}

// FormTokenIssuer mints and redeems single-use tokens binding a subject to one action.
type FormTokenIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	store         RedemptionStore
	clock         func() time.Time
}

// NewFormTokenIssuer constructs an issuer; the TTL defaults to one hour.
func NewFormTokenIssuer(cfg FormTokenIssuerConfig) (*FormTokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingFormTokenSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingFormTokenIssuer
	}
	if cfg.Store == nil {
		return nil, ErrMissingFormTokenStore
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultFormTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	signingKey, err := deriveFormTokenKey(cfg.SigningSecret)
	if err != nil {
		return nil, err
	}
	return &FormTokenIssuer{
		signingSecret: signingKey,
		issuer:        issuer,
		ttl:           ttl,
		store:         cfg.Store,
		clock:         clock,
	}, nil
}

// deriveFormTokenKey expands the configured secret into a key used only for form
// tokens, so a form token never verifies as a session signed with the same secret.
func deriveFormTokenKey(secret []byte) ([]byte, error) {
	key := make([]byte, formTokenKeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(formTokenKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("form tokens: derive signing key: %w", err)
	}
	return key, nil
}

// Issue produces a signed token for the subject and action and its lifetime in seconds.
func (i *FormTokenIssuer) Issue(_ context.Context, subject, action string) (string, int64, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", 0, errMissingSubjectClaim
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return "", 0, errMissingAction
	}
	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", 0, err
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	registered := jwt.RegisteredClaims{
		ID:        tokenID.String(),
		Subject:   subject,
		Issuer:    i.issuer,
		Audience:  []string{action},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(i.ttl.Seconds()), nil
}

// Redeem validates the token for subject and action and consumes it.
// A second redemption of the same token fails with ErrFormTokenReplayed.
func (i *FormTokenIssuer) Redeem(ctx context.Context, tokenString, subject, action string) error {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ErrMissingFormToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(action),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormToken, err)
	}
	if claims.ID == "" || claims.Subject != strings.TrimSpace(subject) {
		return ErrInvalidFormToken
	}

	fresh, err := i.store.Redeem(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time)
	if err != nil {
		return err
	}
	if !fresh {
		return ErrFormTokenReplayed
	}
	return nil
}
