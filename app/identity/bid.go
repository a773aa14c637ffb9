package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// CookieName is the visitor identity cookie.
	CookieName = "bid"
	// CookieMaxAge keeps the identity for one year.
	CookieMaxAge = 365 * 24 * 60 * 60

	tokenBytes     = 16
	signatureBytes = 16
	statsIDBytes   = 16
)

// Signer mints and verifies the signed anonymous visitor identity and
// derives the daily-rotating stats id from it. Both operations are pure
// HMAC; no server-side session state exists.
type Signer struct {
	cookieSecret []byte
	statsSecret  []byte
}

func NewSigner(cookieSecret, statsSecret string) *Signer {
	return &Signer{
		cookieSecret: []byte(cookieSecret),
		statsSecret:  []byte(statsSecret),
	}
}

// Configured reports whether both secrets are set. Identity endpoints
// answer "not ready" when they are not.
func (s *Signer) Configured() bool {
	return len(s.cookieSecret) > 0 && len(s.statsSecret) > 0
}

// Mint generates a fresh token and returns (token, cookieValue). The
// cookie value is base64url(token) "." base64url(truncated HMAC).
func (s *Signer) Mint() (string, string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate identity token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(raw)
	return token, token + "." + s.sign(token), nil
}

// Verify validates a cookie value and returns the embedded token. The
// signature comparison is constant time.
func (s *Signer) Verify(cookieValue string) (string, bool) {
	idx := strings.LastIndex(cookieValue, ".")
	if idx <= 0 || idx == len(cookieValue)-1 {
		return "", false
	}
	token, sig := cookieValue[:idx], cookieValue[idx+1:]

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(decoded) != tokenBytes {
		return "", false
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}

	mac := hmac.New(sha256.New, s.cookieSecret)
	mac.Write([]byte(token))
	want := mac.Sum(nil)[:signatureBytes]

	if !hmac.Equal(gotSig, want) {
		return "", false
	}
	return token, true
}

func (s *Signer) sign(token string) string {
	mac := hmac.New(sha256.New, s.cookieSecret)
	mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:signatureBytes])
}

// DailyStatsID derives the per-day visitor id: HMAC of the token plus
// the UTC date, truncated. It rotates at UTC midnight so events
// collapse within a day but cannot be correlated across days.
func (s *Signer) DailyStatsID(token string, now time.Time) string {
	mac := hmac.New(sha256.New, s.statsSecret)
	mac.Write([]byte(token))
	mac.Write([]byte(now.UTC().Format("20060102")))
	return hex.EncodeToString(mac.Sum(nil)[:statsIDBytes])
}
