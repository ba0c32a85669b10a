package pages

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/flowcheck/internal/browser/browsertest"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

// storeToken makes the fake page answer token reads with *value and clear
// scripts by emptying it.
func storeToken(d *browsertest.Driver, value *string) {
	d.OnEvaluate = func(script string, res interface{}) error {
		switch out := res.(type) {
		case *string:
			*out = *value
		case *bool:
			*value = ""
			*out = true
		}
		return nil
	}
}

func TestParseTokenSource(t *testing.T) {
	tests := []struct {
		raw     string
		want    TokenSource
		wantErr string
	}{
		{raw: "", want: TokenSource{}},
		{raw: "localStorage=access_token", want: TokenSource{Store: StoreLocal, Key: "access_token"}},
		{raw: " sessionStorage=jwt ", want: TokenSource{Store: StoreSession, Key: "jwt"}},
		{raw: "cookie=session", want: TokenSource{Store: StoreCookie, Key: "session"}},
		{raw: "cookie=", wantErr: "expected <store>=<key>"},
		{raw: "indexedDB=token", wantErr: `unknown store "indexedDB"`},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTokenSource(tt.raw)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenSourceScripts(t *testing.T) {
	local := TokenSource{Store: StoreLocal, Key: "access_token"}
	assert.Equal(t, `window.localStorage.getItem("access_token") || ""`, local.readScript())
	assert.Contains(t, local.clearScript(), `window.localStorage.removeItem("access_token")`)

	cookie := TokenSource{Store: StoreCookie, Key: "session"}
	assert.Contains(t, cookie.readScript(), `"session" + "="`)
	assert.Contains(t, cookie.clearScript(), "expires=Thu, 01 Jan 1970")
}

func TestParseSessionToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	iat := exp.Add(-2 * time.Hour)
	raw := signedToken(t, jwt.MapClaims{"sub": "operator@example.test", "exp": exp.Unix(), "iat": iat.Unix()})

	tok, err := ParseSessionToken("Bearer " + raw)
	require.NoError(t, err)
	assert.Equal(t, "operator@example.test", tok.Subject)
	assert.True(t, tok.ExpiresAt.Equal(exp))
	assert.True(t, tok.IssuedAt.Equal(iat))
	assert.False(t, tok.Expired(time.Now()))
	assert.True(t, tok.Expired(exp))

	tok, err = ParseSessionToken(signedToken(t, jwt.MapClaims{"sub": "x"}))
	require.NoError(t, err)
	assert.False(t, tok.Expired(time.Now().Add(100*365*24*time.Hour)), "no exp claim never expires")

	_, err = ParseSessionToken("not-a-jwt")
	assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
}

func TestSessionTokenCheck(t *testing.T) {
	ctx := context.Background()

	newCheck := func(t *testing.T, raw string) (*SessionTokenCheck, *browsertest.Driver) {
		t.Helper()
		kit, d := newKit(t)
		p, err := NewSessionTokenCheck(kit, raw)
		require.NoError(t, err)
		return p, d
	}

	t.Run("disabled", func(t *testing.T) {
		p, d := newCheck(t, "")
		assert.False(t, p.Enabled())
		tok, err := p.Confirm(ctx)
		assert.NoError(t, err)
		assert.Nil(t, tok)
		revoked, err := p.Revoked(ctx)
		assert.NoError(t, err)
		assert.True(t, revoked)
		assert.NoError(t, p.Clear(ctx))
		assert.Empty(t, d.Calls(), "a disabled check never touches the page")
	})

	t.Run("live token", func(t *testing.T) {
		p, d := newCheck(t, "localStorage=access_token")
		value := signedToken(t, jwt.MapClaims{"sub": "operator", "exp": time.Now().Add(time.Hour).Unix()})
		storeToken(d, &value)

		tok, err := p.Confirm(ctx)
		require.NoError(t, err)
		assert.Equal(t, "operator", tok.Subject)

		revoked, err := p.Revoked(ctx)
		require.NoError(t, err)
		assert.False(t, revoked)

		require.NoError(t, p.Clear(ctx))
		revoked, err = p.Revoked(ctx)
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	failures := []struct {
		name    string
		value   string
		message string
	}{
		{"no token", "", "no session token in localStorage=access_token"},
		{"malformed token", "garbage", "session token is malformed"},
		{"expired token", "", "session token expired at"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			p, d := newCheck(t, "localStorage=access_token")
			value := tt.value
			if tt.name == "expired token" {
				value = signedToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
			}
			storeToken(d, &value)

			_, err := p.Confirm(ctx)
			var authErr *AuthenticationError
			require.ErrorAs(t, err, &authErr)
			assert.True(t, strings.HasPrefix(authErr.Message, tt.message), authErr.Message)
		})
	}

	t.Run("page errors are not authentication failures", func(t *testing.T) {
		p, d := newCheck(t, "cookie=session")
		boom := errors.New("cdp: execution context was destroyed")
		d.OnEvaluate = func(string, interface{}) error { return boom }

		_, err := p.Confirm(ctx)
		assert.ErrorIs(t, err, boom)
		var authErr *AuthenticationError
		assert.False(t, errors.As(err, &authErr))

		_, err = p.Revoked(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("bad source", func(t *testing.T) {
		kit, _ := newKit(t)
		_, err := NewSessionTokenCheck(kit, "indexedDB=token")
		assert.Error(t, err)
	})
}
