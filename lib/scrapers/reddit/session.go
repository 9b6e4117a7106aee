package reddit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type storedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// SessionStore keeps the cookie state of a scrape session and mirrors
// it to a file so later runs start from a warmed-up session. A missing
// or corrupt file just means starting empty.
type SessionStore struct {
	path string

	mu      sync.Mutex
	cookies []storedCookie
	index   map[string]int
}

func NewSessionStore(path string) *SessionStore {
	s := &SessionStore{
		path:  path,
		index: map[string]int{},
	}
	s.load()
	return s
}

func cookieKey(domain, name string) string {
	return strings.ToLower(domain) + "\x00" + name
}

func (s *SessionStore) load() {
	if s.path == "" {
		return
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read session file, starting empty", "path", s.path, "err", err)
		}
		return
	}
	var cookies []storedCookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		slog.Warn("failed to parse session file, starting empty", "path", s.path, "err", err)
		return
	}
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		s.put(c)
	}
}

// put overwrites an existing cookie with the same (domain, name) in
// place, preserving first-seen order.
func (s *SessionStore) put(c storedCookie) {
	key := cookieKey(c.Domain, c.Name)
	if i, ok := s.index[key]; ok {
		s.cookies[i] = c
		return
	}
	s.index[key] = len(s.cookies)
	s.cookies = append(s.cookies, c)
}

// Cookies returns the session as http cookies grouped by the url they
// should be set against, suitable for seeding a cookie jar.
func (s *SessionStore) Cookies() map[*url.URL][]*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	grouped := map[string][]*http.Cookie{}
	for _, c := range s.cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		grouped[host] = append(grouped[host], &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	out := map[*url.URL][]*http.Cookie{}
	for host, cookies := range grouped {
		out[&url.URL{Scheme: "https", Host: host}] = cookies
	}
	return out
}

// Merge folds response cookies into the session. Cookies without an
// explicit domain are scoped to defaultDomain.
func (s *SessionStore) Merge(cookies []*http.Cookie, defaultDomain string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = defaultDomain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		s.put(storedCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domain,
			Path:   path,
		})
	}
}

// Flush writes the session to disk. The write goes through a temporary
// file and a rename so a crash mid-write never leaves a torn file.
func (s *SessionStore) Flush() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	raw, err := json.MarshalIndent(s.cookies, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cookies)
}
