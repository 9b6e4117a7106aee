package reddit

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const successPageHtml = `
<html><head><title>top scoring links : golang</title></head><body>
<div id="siteTable">
	<div class="thing link" id="thing_t3_abc123">
		<a class="title" href="/r/golang/comments/abc123/hello/">Hello world thread</a>
		<div class="score unvoted" title="10">10</div>
	</div>
</div>
</body></html>`

const challengePageHtml = `
<html><head><title>Log in to Reddit</title></head><body>login form</body></html>`

// fastRetryPolicy keeps every wait in the low-millisecond range so
// retry paths can be exercised without real sleeping.
func fastRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      maxAttempts,
		BackoffUnit:      time.Millisecond,
		NetworkJitter:    DelayRange{Min: 0.001, Max: 0.002},
		HeavyLoadDelay:   DelayRange{Min: 0.001, Max: 0.002},
		ChallengeDelay:   DelayRange{Min: 0.001, Max: 0.002},
		WrongDomainDelay: DelayRange{Min: 0.001, Max: 0.002},
	}
}

func newTestClient(t *testing.T, serverUrl string, policy RetryPolicy, sessionFile string) *Client {
	client, err := NewClient(ClientOptions{
		BaseUrl:     serverUrl,
		SessionFile: sessionFile,
		Policy:      policy,
		Subjects:    []string{"golang"},
		Headers:     NewHeaderProfileSource(rand.New(rand.NewSource(1))),
		Limiter:     NewRateLimiter(DelayRange{}, rand.New(rand.NewSource(1))),
	})
	require.NoError(t, err)
	return client
}

func TestFetchSuccess(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(successPageHtml))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, fastRetryPolicy(3), "")
	doc, finalUrl, err := client.Fetch(context.Background(), srv.URL+"/r/golang/top/?t=month")

	require.NoError(t, err)
	require.Equal(t, int64(1), requests.Load())
	require.Contains(t, finalUrl, "/r/golang/top/")
	require.Equal(t, 1, doc.Find("div.thing").Length())
}

func TestFetchExhaustsAttemptsOnHttpError(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, fastRetryPolicy(3), "")
	_, _, err := client.Fetch(context.Background(), srv.URL+"/r/golang/top/?t=month")

	require.Error(t, err)
	require.Equal(t, int64(3), requests.Load())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, FailureExhausted, fetchErr.Kind)

	var inner *FetchError
	require.ErrorAs(t, fetchErr.Err, &inner)
	require.Equal(t, FailureHttpStatus, inner.Kind)
}

func TestFetchRetriesThroughChallenge(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Write([]byte(challengePageHtml))
			return
		}
		w.Write([]byte(successPageHtml))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, fastRetryPolicy(3), "")
	doc, _, err := client.Fetch(context.Background(), srv.URL+"/r/golang/top/?t=month")

	require.NoError(t, err)
	require.Equal(t, int64(2), requests.Load())
	require.Equal(t, 1, doc.Find("div.thing").Length())
}

func TestFetchWrongDomainRetriesOnce(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`<html><head><title>Premium Proxy Service</title></head><body></body></html>`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, fastRetryPolicy(5), "")
	_, _, err := client.Fetch(context.Background(), srv.URL+"/r/golang/top/?t=month")

	require.Error(t, err)
	// one retry for a substituted page, then give up regardless of budget
	require.Equal(t, int64(2), requests.Load())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, FailureUnexpectedContent, fetchErr.Kind)
}

func TestFetchHonorsCancelledContext(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(successPageHtml))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL, fastRetryPolicy(3), "")
	_, _, err := client.Fetch(ctx, srv.URL+"/r/golang/top/?t=month")

	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, int64(0), requests.Load())
}

func TestFetchPersistsSessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session_tracker", Value: "abc123", Path: "/"})
		w.Write([]byte(successPageHtml))
	}))
	defer srv.Close()

	sessionFile := filepath.Join(t.TempDir(), "session.json")
	client := newTestClient(t, srv.URL, fastRetryPolicy(3), sessionFile)

	_, _, err := client.Fetch(context.Background(), srv.URL+"/r/golang/top/?t=month")
	require.NoError(t, err)

	raw, err := os.ReadFile(sessionFile)
	require.NoError(t, err)
	require.Contains(t, string(raw), "session_tracker")
	require.Contains(t, string(raw), "abc123")

	// a new client seeded from the same file sends the cookie back
	var gotCookie atomic.Bool
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session_tracker"); err == nil && c.Value == "abc123" {
			gotCookie.Store(true)
		}
		w.Write([]byte(successPageHtml))
	}))
	defer srv2.Close()

	client2 := newTestClient(t, srv2.URL, fastRetryPolicy(3), sessionFile)
	_, _, err = client2.Fetch(context.Background(), srv2.URL+"/r/golang/top/?t=month")
	require.NoError(t, err)
	require.True(t, gotCookie.Load())
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var userAgent, referer atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		referer.Store(r.Header.Get("Referer"))
		w.Write([]byte(successPageHtml))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, fastRetryPolicy(3), "")
	_, _, err := client.Fetch(context.Background(), srv.URL+"/r/golang/top/?t=month")
	require.NoError(t, err)

	require.Contains(t, userAgent.Load().(string), "Mozilla/5.0")
	require.Equal(t, "https://www.google.com/", referer.Load().(string))
}
