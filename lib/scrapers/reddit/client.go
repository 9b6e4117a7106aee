package reddit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"time"

	"threadharvest/lib/restyutil"
	"threadharvest/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("scrapers/reddit")

const requestTimeout = time.Second * 20

type ClientOptions struct {
	// origin requests are made against, e.g. https://old.reddit.com
	BaseUrl string
	// cookie persistence path, empty disables persistence
	SessionFile string
	Policy      RetryPolicy
	// subreddit/search names of this run, used for response plausibility checks
	Subjects []string
	Headers  *HeaderProfileSource
	Limiter  *RateLimiter
	// directory for raw response dumps, empty disables them
	DebugDir string
}

// Client performs one logical fetch at a time: build a fresh browser
// identity, issue the request, classify what came back, and retry with
// the appropriate backoff until the attempt budget runs out. It is the
// sole owner of the session cookie state.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	policy     RetryPolicy
	classifier Classifier
	session    *SessionStore
	headers    *HeaderProfileSource
	limiter    *RateLimiter
	debug      restyutil.FilesystemOutput
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	if opts.Headers == nil {
		opts.Headers = NewHeaderProfileSource(nil)
	}
	if opts.Limiter == nil {
		opts.Limiter = NewRateLimiter(DelayRange{}, nil)
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultRetryPolicy()
	}

	session := NewSessionStore(opts.SessionFile)

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	for u, cookies := range session.Cookies() {
		jar.SetCookies(u, cookies)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(
		baseUrl.Hostname(), "reddit.com", "www.reddit.com", "old.reddit.com",
	))
	client.SetTimeout(requestTimeout)

	limiter := opts.Limiter
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, "scrapers/reddit/http")

	var debug restyutil.FilesystemOutput
	if opts.DebugDir != "" {
		debug = restyutil.NewFilesystemOutput(opts.DebugDir)
	}

	return &Client{
		BaseUrl:    baseUrl,
		Http:       client,
		policy:     opts.Policy,
		classifier: NewClassifier(opts.Subjects),
		session:    session,
		headers:    opts.Headers,
		limiter:    opts.Limiter,
		debug:      debug,
	}, nil
}

// Fetch retrieves pageUrl and parses it, retrying through transient
// failures and anti-automation blocks up to the policy's attempt
// budget. It returns the parsed document and the final url after
// redirects. Cancellation is honored between attempts, never mid
// request.
func (c *Client) Fetch(ctx context.Context, pageUrl string) (*goquery.Document, string, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", pageUrl))

	var lastErr *FetchError
	wrongDomainRetried := false

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		profile := c.headers.Next()
		res, err := c.Http.R().
			SetContext(ctx).
			SetHeaders(profile.Headers()).
			Get(pageUrl)

		// even blocked responses may set cookies worth keeping
		c.persistSession(res)

		if err != nil {
			lastErr = &FetchError{Kind: FailureNetwork, Url: pageUrl, Err: err}
			slog.WarnContext(ctx, "request failed", "url", pageUrl, "attempt", attempt, "err", err)
			if serr := c.sleepBackoff(ctx, attempt); serr != nil {
				return nil, "", serr
			}
			continue
		}

		finalUrl := res.RawResponse.Request.URL
		c.debug.Write("last_response.html", string(res.Body()))

		doc, perr := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
		title := ""
		if perr == nil {
			title = doc.Find("title").First().Text()
		}

		category := c.classifier.Classify(res.StatusCode(), finalUrl, title)
		slog.DebugContext(ctx, "classified response",
			"url", pageUrl, "attempt", attempt,
			"status", res.StatusCode(), "category", category.String(), "title", title)

		switch category {
		case CategorySuccess:
			if perr != nil {
				lastErr = &FetchError{Kind: FailureNetwork, Url: pageUrl, Err: perr}
				if serr := c.sleepBackoff(ctx, attempt); serr != nil {
					return nil, "", serr
				}
				continue
			}
			return doc, finalUrl.String(), nil

		case CategoryHeavyLoad:
			lastErr = &FetchError{
				Kind: FailureAntiAutomation,
				Url:  pageUrl,
				Err:  fmt.Errorf("heavy load page"),
			}
			if serr := c.limiter.Sleep(ctx, c.limiter.Jitter(c.policy.HeavyLoadDelay)); serr != nil {
				return nil, "", serr
			}

		case CategoryCaptchaOrLogin:
			lastErr = &FetchError{
				Kind: FailureAntiAutomation,
				Url:  pageUrl,
				Err:  fmt.Errorf("challenge page: %q", title),
			}
			slog.WarnContext(ctx, "got anti-automation challenge", "url", pageUrl, "title", title)
			if serr := c.limiter.Sleep(ctx, c.limiter.Jitter(c.policy.ChallengeDelay)); serr != nil {
				return nil, "", serr
			}

		case CategoryWrongDomain:
			lastErr = &FetchError{
				Kind: FailureUnexpectedContent,
				Url:  pageUrl,
				Err:  fmt.Errorf("implausible page title: %q", title),
			}
			if wrongDomainRetried {
				// a second substituted page won't get better on retry
				span.SetStatus(codes.Error, lastErr.Error())
				return nil, "", lastErr
			}
			wrongDomainRetried = true
			if serr := c.limiter.Sleep(ctx, c.limiter.Jitter(c.policy.WrongDomainDelay)); serr != nil {
				return nil, "", serr
			}

		case CategoryHttpError:
			lastErr = &FetchError{
				Kind: FailureHttpStatus,
				Url:  pageUrl,
				Err:  fmt.Errorf("status code %d", res.StatusCode()),
			}
			if serr := c.sleepBackoff(ctx, attempt); serr != nil {
				return nil, "", serr
			}
		}
	}

	exhausted := &FetchError{Kind: FailureExhausted, Url: pageUrl, Err: lastErr}
	span.SetStatus(codes.Error, exhausted.Error())
	return nil, "", exhausted
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	wait := c.limiter.Backoff(attempt, c.policy.BackoffUnit, c.policy.NetworkJitter)
	slog.DebugContext(ctx, "backing off", "attempt", attempt, "wait", wait)
	return c.limiter.Sleep(ctx, wait)
}

func (c *Client) persistSession(res *resty.Response) {
	if res != nil && res.RawResponse != nil {
		c.session.Merge(res.Cookies(), res.RawResponse.Request.URL.Hostname())
	}
	if err := c.session.Flush(); err != nil {
		slog.Warn("failed to persist session", "err", err)
	}
}
