package reddit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

type AssemblerOptions struct {
	Client   *Client
	Pipeline *Pipeline
	Limiter  *RateLimiter
	// records scoring below this are emitted without a detail fetch
	MinimumScore int
	// jittered pause between consecutive detail fetches
	DetailDelay DelayRange
	// rewrite detail urls to the legacy rendering before fetching
	UseLegacyLayout bool
}

// Assembler orchestrates the two-phase fetch per candidate record: one
// listing page per (subreddit, time filter), then a conditional detail
// fetch to enrich records that look worth the extra request. Execution
// is strictly sequential, fanning out would only raise the visible
// request rate and with it the detection risk.
type Assembler struct {
	client      *Client
	pipeline    *Pipeline
	limiter     *RateLimiter
	minScore    int
	detailDelay DelayRange
	useLegacy   bool
}

func NewAssembler(opts AssemblerOptions) *Assembler {
	if opts.DetailDelay.Max <= 0 {
		opts.DetailDelay = DelayRange{Min: 5, Max: 10}
	}
	return &Assembler{
		client:      opts.Client,
		pipeline:    opts.Pipeline,
		limiter:     opts.Limiter,
		minScore:    opts.MinimumScore,
		detailDelay: opts.DetailDelay,
		useLegacy:   opts.UseLegacyLayout,
	}
}

// Assemble scrapes the top listing of one subreddit. A failed detail
// fetch never drops the record, it is emitted with whatever the
// listing already yielded and the failure noted on the record.
func (a *Assembler) Assemble(ctx context.Context, subreddit string, filter TimeFilter) ([]ThreadRecord, error) {
	ctx, span := tracer.Start(ctx, "assembler:Assemble")
	defer span.End()
	span.SetAttributes(
		attribute.String("subreddit", subreddit),
		attribute.String("time_filter", string(filter)),
	)

	listingUrl := fmt.Sprintf(
		"%s/r/%s/top/?t=%s",
		strings.TrimSuffix(a.client.BaseUrl.String(), "/"),
		url.PathEscape(subreddit),
		filter,
	)
	return a.assembleListing(ctx, listingUrl, subreddit)
}

// AssembleSearch scrapes the site-wide search listing for a keyword.
// Records carry "search" as their subreddit, matching how the listing
// page mixes posts from many communities.
func (a *Assembler) AssembleSearch(ctx context.Context, keyword string, filter TimeFilter) ([]ThreadRecord, error) {
	ctx, span := tracer.Start(ctx, "assembler:AssembleSearch")
	defer span.End()
	span.SetAttributes(attribute.String("keyword", keyword))

	searchUrl := fmt.Sprintf(
		"%s/search/?q=%s&sort=relevance&t=%s",
		strings.TrimSuffix(a.client.BaseUrl.String(), "/"),
		url.QueryEscape(keyword),
		filter,
	)
	return a.assembleListing(ctx, searchUrl, "search")
}

func (a *Assembler) assembleListing(ctx context.Context, listingUrl, subreddit string) ([]ThreadRecord, error) {
	doc, _, err := a.client.Fetch(ctx, listingUrl)
	if err != nil {
		return nil, err
	}

	records := a.pipeline.Listing(doc, subreddit)
	slog.DebugContext(ctx, "extracted listing", "subreddit", subreddit, "count", len(records))

	detailFetches := 0
	for i := range records {
		rec := &records[i]
		if rec.Score < a.minScore {
			continue
		}

		// pace detail fetches, but not before the first one
		if detailFetches > 0 {
			if err := a.limiter.Sleep(ctx, a.limiter.Jitter(a.detailDelay)); err != nil {
				return records, err
			}
		}
		detailFetches++
		a.enrich(ctx, rec)
	}
	return records, nil
}

func (a *Assembler) enrich(ctx context.Context, rec *ThreadRecord) {
	detailUrl := rec.Permalink
	if a.useLegacy && !strings.Contains(detailUrl, "old.reddit.com") {
		detailUrl = strings.Replace(detailUrl, "www.reddit.com", "old.reddit.com", 1)
	}

	doc, _, err := a.client.Fetch(ctx, detailUrl)
	if err != nil {
		rec.DetailErr = err
		slog.WarnContext(ctx, "failed to fetch thread details", "id", rec.Id, "err", err)
		return
	}

	detail := a.pipeline.Detail(doc)
	rec.Selftext = detail.Selftext
	rec.NumComments = detail.NumComments
	if len(detail.Comments) > 0 {
		rec.TopComments = detail.Comments
	}
}
