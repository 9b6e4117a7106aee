package reddit

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	store := NewSessionStore(path)
	require.Equal(t, 0, store.Len())

	store.Merge([]*http.Cookie{
		{Name: "session_tracker", Value: "abc", Domain: ".reddit.com", Path: "/"},
		{Name: "csv", Value: "2"},
	}, "www.reddit.com")
	require.Equal(t, 2, store.Len())
	require.NoError(t, store.Flush())

	reloaded := NewSessionStore(path)
	require.Equal(t, 2, reloaded.Len())

	grouped := reloaded.Cookies()
	byHost := map[string][]*http.Cookie{}
	for u, cookies := range grouped {
		byHost[u.Host] = cookies
	}
	require.Len(t, byHost["reddit.com"], 1)
	require.Equal(t, "session_tracker", byHost["reddit.com"][0].Name)
	require.Equal(t, "abc", byHost["reddit.com"][0].Value)
	require.Len(t, byHost["www.reddit.com"], 1)
	require.Equal(t, "csv", byHost["www.reddit.com"][0].Name)
}

func TestSessionStoreOverwritesByDomainAndName(t *testing.T) {
	store := NewSessionStore("")

	store.Merge([]*http.Cookie{{Name: "token", Value: "old"}}, "reddit.com")
	store.Merge([]*http.Cookie{{Name: "token", Value: "new"}}, "reddit.com")
	store.Merge([]*http.Cookie{{Name: "token", Value: "other-domain"}}, "old.reddit.com")

	require.Equal(t, 2, store.Len())
	for _, cookies := range store.Cookies() {
		for _, c := range cookies {
			if c.Domain == "reddit.com" {
				require.Equal(t, "new", c.Value)
			}
		}
	}
}

func TestSessionStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewSessionStore(path)
	require.Equal(t, 0, store.Len())

	// a flush replaces the corrupt file with a valid one
	store.Merge([]*http.Cookie{{Name: "a", Value: "1"}}, "reddit.com")
	require.NoError(t, store.Flush())
	require.Equal(t, 1, NewSessionStore(path).Len())
}

func TestSessionStoreFlushLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	store := NewSessionStore(path)
	store.Merge([]*http.Cookie{{Name: "a", Value: "1"}}, "reddit.com")
	require.NoError(t, store.Flush())
	require.NoError(t, store.Flush())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "session.json", entries[0].Name())
}

func TestSessionStoreNoPath(t *testing.T) {
	store := NewSessionStore("")
	store.Merge([]*http.Cookie{{Name: "a", Value: "1"}}, "reddit.com")
	require.NoError(t, store.Flush())
	require.Equal(t, 1, store.Len())
}
