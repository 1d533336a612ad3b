// internal/auth/credentials_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	t.Run("header string", func(t *testing.T) {
		creds, err := ParseCredentials(` li_at=AQEDAR; JSESSIONID="ajax:123" ;lang=v=2&lang=en-us; bcookie=`, "li_at")
		require.NoError(t, err)

		assert.Equal(t, "AQEDAR", creds.Token())
		assert.Equal(t, 4, creds.Len())
		v, ok := creds.Get("JSESSIONID")
		assert.True(t, ok)
		assert.Equal(t, "ajax:123", v, "quotes are stripped")
		v, _ = creds.Get("lang")
		assert.Equal(t, "v=2&lang=en-us", v, "only the first '=' separates name and value")
	})

	t.Run("repeated name keeps last value and first position", func(t *testing.T) {
		creds, err := ParseCredentials("a=1; li_at=x; a=2", "li_at")
		require.NoError(t, err)
		cookies := creds.Cookies(".linkedin.com")
		require.Len(t, cookies, 2)
		assert.Equal(t, "a", cookies[0].Name)
		assert.Equal(t, "2", cookies[0].Value)
	})

	t.Run("custom token key", func(t *testing.T) {
		creds, err := ParseCredentials("session=abc", "session")
		require.NoError(t, err)
		assert.Equal(t, "abc", creds.Token())
	})

	missing := map[string]string{
		"empty":              "",
		"absent":             "JSESSIONID=1; lang=en",
		"empty value":        "li_at=; JSESSIONID=1",
		"quoted empty value": `li_at=""`,
		"garbage":            ";;; =x; li_at",
	}
	for name, raw := range missing {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCredentials(raw, "li_at")
			assert.ErrorIs(t, err, ErrMissingToken)
		})
	}
}

func TestCredentials_Cookies(t *testing.T) {
	creds, err := ParseCredentials("li_at=tok; JSESSIONID=js", "li_at")
	require.NoError(t, err)

	cookies := creds.Cookies(".linkedin.com")
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Equal(t, ".linkedin.com", c.Domain)
		assert.Equal(t, "/", c.Path)
		assert.True(t, c.Secure)
	}
	assert.Equal(t, "li_at", cookies[0].Name)
	assert.True(t, cookies[0].HTTPOnly)
	assert.False(t, cookies[1].HTTPOnly)
}
