package reddit

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderProfileSourceDeterministic(t *testing.T) {
	a := NewHeaderProfileSource(rand.New(rand.NewSource(42)))
	b := NewHeaderProfileSource(rand.New(rand.NewSource(42)))

	for i := 0; i < 10; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestHeaderProfileSourceVariety(t *testing.T) {
	source := NewHeaderProfileSource(rand.New(rand.NewSource(1)))

	agents := map[string]bool{}
	for i := 0; i < 50; i++ {
		profile := source.Next()
		require.NotEmpty(t, profile.UserAgent)
		require.NotEmpty(t, profile.AcceptLanguage)
		agents[profile.UserAgent] = true
	}
	require.Greater(t, len(agents), 1)
}

func TestHeaderProfileHeaders(t *testing.T) {
	profile := NewHeaderProfileSource(rand.New(rand.NewSource(7))).Next()
	headers := profile.Headers()

	require.Equal(t, profile.UserAgent, headers["User-Agent"])
	require.Equal(t, profile.AcceptLanguage, headers["Accept-Language"])
	require.Equal(t, defaultAccept, headers["Accept"])
	require.Equal(t, "document", headers["Sec-Fetch-Dest"])
	require.Equal(t, "https://www.google.com/", headers["Referer"])
	require.Equal(t, "1", headers["DNT"])
}
