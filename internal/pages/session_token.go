package pages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Token stores understood by TokenSource.
const (
	StoreLocal   = "localStorage"
	StoreSession = "sessionStorage"
	StoreCookie  = "cookie"
)

// TokenSource names where the application keeps its session token.
type TokenSource struct {
	Store string
	Key   string
}

// ParseTokenSource parses "localStorage=<key>", "sessionStorage=<key>" or
// "cookie=<name>". An empty string is the zero source.
func ParseTokenSource(raw string) (TokenSource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenSource{}, nil
	}
	store, key, ok := strings.Cut(raw, "=")
	if !ok || key == "" {
		return TokenSource{}, fmt.Errorf("session token source %q: expected <store>=<key>", raw)
	}
	switch store {
	case StoreLocal, StoreSession, StoreCookie:
		return TokenSource{Store: store, Key: key}, nil
	}
	return TokenSource{}, fmt.Errorf("session token source %q: unknown store %q", raw, store)
}

func (s TokenSource) IsZero() bool { return s.Key == "" }

func (s TokenSource) String() string { return s.Store + "=" + s.Key }

func (s TokenSource) readScript() string {
	key := strconv.Quote(s.Key)
	if s.Store == StoreCookie {
		return fmt.Sprintf(`(() => {
	const prefix = %s + "=";
	const c = document.cookie.split("; ").find(c => c.startsWith(prefix));
	return c ? decodeURIComponent(c.slice(prefix.length)) : "";
})()`, key)
	}
	return fmt.Sprintf(`window.%s.getItem(%s) || ""`, s.Store, key)
}

func (s TokenSource) clearScript() string {
	key := strconv.Quote(s.Key)
	if s.Store == StoreCookie {
		return fmt.Sprintf(`(() => { document.cookie = %s + "=; expires=Thu, 01 Jan 1970 00:00:00 GMT; path=/"; return true; })()`, key)
	}
	return fmt.Sprintf(`(() => { window.%s.removeItem(%s); return true; })()`, s.Store, key)
}

// SessionToken is what the harness reads out of the application's session
// JWT. The signature is not verified; only the issued claims are inspected.
type SessionToken struct {
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Expired reports whether the token carries an expiry at or before now.
func (t *SessionToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

var tokenParser = jwt.NewParser()

// ParseSessionToken decodes the claims of raw, which may carry a "Bearer "
// prefix. Malformed tokens fail with an error matching jwt.ErrTokenMalformed.
func ParseSessionToken(raw string) (*SessionToken, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "Bearer ")
	claims := jwt.MapClaims{}
	if _, _, err := tokenParser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}

	tok := &SessionToken{}
	tok.Subject, _ = claims.GetSubject()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tok.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tok.ExpiresAt = exp.Time
	}
	return tok, nil
}

// SessionTokenCheck reads the session token through the page. A check with a
// zero source is disabled and every check passes.
type SessionTokenCheck struct {
	kit    Toolkit
	source TokenSource
	now    func() time.Time
}

// NewSessionTokenCheck parses raw with ParseTokenSource.
func NewSessionTokenCheck(kit Toolkit, raw string) (*SessionTokenCheck, error) {
	source, err := ParseTokenSource(raw)
	if err != nil {
		return nil, err
	}
	return &SessionTokenCheck{kit: kit, source: source, now: time.Now}, nil
}

// Enabled reports whether a token source is configured.
func (p *SessionTokenCheck) Enabled() bool { return !p.source.IsZero() }

// Read returns the stored token, or nil when the store holds none.
func (p *SessionTokenCheck) Read(ctx context.Context) (*SessionToken, error) {
	var raw string
	if err := p.kit.Driver.Evaluate(ctx, p.source.readScript(), &raw); err != nil {
		return nil, fmt.Errorf("reading session token from %s: %w", p.source, err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return ParseSessionToken(raw)
}

// Confirm checks that a login left a live session token behind. A missing,
// malformed or already expired token is an *AuthenticationError.
func (p *SessionTokenCheck) Confirm(ctx context.Context) (*SessionToken, error) {
	if !p.Enabled() {
		return nil, nil
	}
	tok, err := p.Read(ctx)
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, &AuthenticationError{Message: "session token is malformed", Cause: err}
	case err != nil:
		return nil, err
	case tok == nil:
		return nil, &AuthenticationError{Message: fmt.Sprintf("no session token in %s", p.source)}
	case tok.Expired(p.now()):
		return tok, &AuthenticationError{Message: fmt.Sprintf("session token expired at %s", tok.ExpiresAt.Format(time.RFC3339))}
	}
	p.kit.Logger.Debug("Session token confirmed.",
		zap.String("subject", tok.Subject),
		zap.Time("expires_at", tok.ExpiresAt))
	return tok, nil
}

// Clear removes the token from its store.
func (p *SessionTokenCheck) Clear(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	var ok bool
	if err := p.kit.Driver.Evaluate(ctx, p.source.clearScript(), &ok); err != nil {
		return fmt.Errorf("clearing session token from %s: %w", p.source, err)
	}
	return nil
}

// Revoked reports whether the stored token is gone or no longer live.
func (p *SessionTokenCheck) Revoked(ctx context.Context) (bool, error) {
	if !p.Enabled() {
		return true, nil
	}
	tok, err := p.Read(ctx)
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return tok == nil || tok.Expired(p.now()), nil
}
