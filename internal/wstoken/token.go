// Package wstoken issues, verifies and single-use-consumes short-lived
// signed tokens binding a WebSocket subscription to a capability key,
// scope and event tier (§4.G).
package wstoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tier mirrors the capability permission tier this token was minted for.
type Tier string

const (
	TierRead   Tier = "read"
	TierAppend Tier = "append"
	TierWrite  Tier = "write"
)

// eventsByTier is the exact per-tier event list from §4.G, expressed as
// cumulative sets (append includes read's events, write includes both).
var eventsByTier = map[Tier][]string{
	TierRead: {"append", "file.created", "file.deleted", "file.updated"},
	TierAppend: {
		"append", "file.created", "file.deleted", "file.updated",
		"task.created", "task.blocked", "claim.expired", "heartbeat",
	},
	TierWrite: {
		"append", "file.created", "file.deleted", "file.updated",
		"task.created", "task.blocked", "claim.expired", "heartbeat",
		"webhook.failed", "settings.changed",
	},
}

// EventsForTier returns the exact event set a subscribe response should
// list for tier.
func EventsForTier(t Tier) []string {
	return append([]string(nil), eventsByTier[t]...)
}

// Payload is the WS-token claim set (§3 "WS-token payload").
type Payload struct {
	WorkspaceID string `json:"workspaceId"`
	KeyTier     Tier   `json:"keyTier"`
	KeyHash     string `json:"keyHash"`
	Scope       string `json:"scope,omitempty"`
	Nonce       string `json:"nonce"`
}

type claims struct {
	jwt.RegisteredClaims
	Payload
}

// Code is the small closed set of verification failure codes (§4.G).
type Code string

const (
	CodeInvalid     Code = "TOKEN_INVALID"
	CodeExpired     Code = "TOKEN_EXPIRED"
	CodeAlreadyUsed Code = "TOKEN_ALREADY_USED"
)

// VerifyError carries the HTTP status the route should surface alongside Code.
type VerifyError struct {
	Code   Code
	Status int
}

func (e *VerifyError) Error() string { return string(e.Code) }

// TokenTTL is the fixed token lifetime from §6: 60 minutes from issue.
const TokenTTL = 60 * time.Minute

// Service signs and verifies WS-subscription tokens and tracks single-use
// nonce consumption in-process (§4.G / §9 "Open question").
type Service struct {
	secret []byte

	mu      sync.Mutex
	used    map[string]time.Time // nonce -> expiry, for periodic GC
}

// NewService builds a Service with the given HMAC signing secret.
func NewService(secret []byte) *Service {
	return &Service{secret: secret, used: make(map[string]time.Time)}
}

// Sign mints a token for payload, expiring TokenTTL from now.
func (s *Service) Sign(payload Payload, now time.Time) (string, error) {
	if payload.Nonce == "" {
		nonce, err := randomNonce()
		if err != nil {
			return "", fmt.Errorf("wstoken: nonce generation failed: %w", err)
		}
		payload.Nonce = nonce
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		Payload: payload,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("wstoken: signing failed: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the decoded payload.
func (s *Service) Verify(token string, now time.Time) (Payload, *VerifyError) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, &VerifyError{Code: CodeExpired, Status: 401}
		}
		return Payload{}, &VerifyError{Code: CodeInvalid, Status: 401}
	}
	if !parsed.Valid {
		return Payload{}, &VerifyError{Code: CodeInvalid, Status: 401}
	}

	return c.Payload, nil
}

// Consume records nonce as used. A second call for the same nonce fails
// with TOKEN_ALREADY_USED. expiresAt bounds how long the nonce must be
// remembered; a process restart clears all single-use state, which is
// acceptable because exp still bounds exposure (§4.G).
func (s *Service) Consume(nonce string, expiresAt time.Time) *VerifyError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.used[nonce]; used {
		return &VerifyError{Code: CodeAlreadyUsed, Status: 401}
	}
	s.used[nonce] = expiresAt
	return nil
}

// GCExpiredNonces drops consumed-nonce bookkeeping past its token expiry,
// bounding the single-use set's memory footprint.
func (s *Service) GCExpiredNonces(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for nonce, exp := range s.used {
		if exp.Before(now) {
			delete(s.used, nonce)
			n++
		}
	}
	return n
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
