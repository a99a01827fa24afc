// Package invite implements the self-contained group invite tokens. A token
// carries everything needed to judge it (group, expiry, issue time), so
// validity can be checked offline; the revocation ledger is a local cache of
// server truth, not the source of it.
package invite

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	tokenVersion   = 2
	checksumLength = 6
	isoMillis      = "2006-01-02T15:04:05.000Z"
)

// Record is the decoded content of an invite token.
type Record struct {
	GroupID        string
	ExpiresAt      time.Time
	ExpirationDays int
	IssuedAt       time.Time
	Salt           string
	Version        int
}

// Reasons reported by Validate for tokens that are not valid.
const (
	ReasonInvalid = "invalid"
	ReasonRevoked = "revoked"
	ReasonExpired = "expired"
)

// Validation is the outcome of validating a token.
type Validation struct {
	Valid  bool
	Reason string
	Record *Record
}

// Revocation records a locally revoked token. The original expiry is kept for
// audit, distinct from the revocation time that forces the token dead.
type Revocation struct {
	RevokedAt         time.Time
	OriginalExpiresAt time.Time
}

// Codec encodes, decodes and validates invite tokens and tracks local
// revocations.
type Codec struct {
	NowFunc func() time.Time

	mu      sync.Mutex
	revoked map[string]Revocation
}

// NewCodec returns a Codec with an empty revocation ledger.
func NewCodec() *Codec {
	return &Codec{revoked: make(map[string]Revocation)}
}

type tokenPayload struct {
	GroupID        string `json:"g"`
	ExpiresAt      string `json:"e"`
	ExpirationDays int    `json:"d"`
	IssuedAtMillis int64  `json:"t"`
	Salt           string `json:"r"`
	Version        int    `json:"v"`
}

// Encode produces a URL-safe token for the group: compact JSON, unpadded
// url-safe base64, then a dot-separated checksum of the encoded part.
func (c *Codec) Encode(groupID string, expiresAt time.Time, expirationDays int) (string, error) {
	payload := tokenPayload{
		GroupID:        groupID,
		ExpiresAt:      expiresAt.UTC().Format(isoMillis),
		ExpirationDays: expirationDays,
		IssuedAtMillis: c.now().UnixMilli(),
		Salt:           randomSalt(),
		Version:        tokenVersion,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + checksum(encoded), nil
}

// Decode parses a token. It returns nil for any malformed input (wrong segment
// count, checksum mismatch, bad base64, bad JSON, missing fields) and never
// panics or errors to the caller.
func (c *Codec) Decode(token string) *Record {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil
	}
	encoded, sum := parts[0], parts[1]
	if sum != checksum(encoded) {
		return nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}

	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	if payload.GroupID == "" || payload.ExpiresAt == "" || payload.ExpirationDays == 0 || payload.IssuedAtMillis == 0 {
		return nil
	}

	expiresAt, err := parseISOTime(payload.ExpiresAt)
	if err != nil {
		return nil
	}

	version := payload.Version
	if version == 0 {
		version = 1
	}
	return &Record{
		GroupID:        payload.GroupID,
		ExpiresAt:      expiresAt,
		ExpirationDays: payload.ExpirationDays,
		IssuedAt:       time.UnixMilli(payload.IssuedAtMillis).UTC(),
		Salt:           payload.Salt,
		Version:        version,
	}
}

// Validate judges a token: undecodable tokens are invalid, revocation takes
// precedence over expiry, and a token expiring exactly now is already expired.
func (c *Codec) Validate(token string) Validation {
	record := c.Decode(token)
	if record == nil {
		return Validation{Valid: false, Reason: ReasonInvalid}
	}

	if c.isRevoked(token) {
		return Validation{Valid: false, Reason: ReasonRevoked, Record: record}
	}

	if !c.now().Before(record.ExpiresAt) {
		return Validation{Valid: false, Reason: ReasonExpired, Record: record}
	}

	return Validation{Valid: true, Record: record}
}

// Revoke marks the token revoked, preserving its original expiry for audit.
// Revoking an undecodable token is a no-op returning false.
func (c *Codec) Revoke(token string) bool {
	record := c.Decode(token)
	if record == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, already := c.revoked[token]; already {
		return true
	}
	c.revoked[token] = Revocation{
		RevokedAt:         c.now(),
		OriginalExpiresAt: record.ExpiresAt,
	}
	return true
}

// RevocationOf returns the local revocation record for a token, if any.
func (c *Codec) RevocationOf(token string) (Revocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev, ok := c.revoked[token]
	return rev, ok
}

func (c *Codec) isRevoked(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.revoked[token]
	return ok
}

func (c *Codec) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now().UTC()
}

// checksum computes the short integrity suffix: a 32-bit shift-add hash of the
// encoded part, absolute value, base36, truncated to six characters. It guards
// against link truncation in transit, not against tampering.
func checksum(s string) string {
	var hash int32
	for _, b := range []byte(s) {
		hash = (hash << 5) - hash + int32(b)
	}

	value := int64(hash)
	if value < 0 {
		value = -value
	}
	encoded := strconv.FormatInt(value, 36)
	if len(encoded) > checksumLength {
		encoded = encoded[:checksumLength]
	}
	return encoded
}

func parseISOTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func randomSalt() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
