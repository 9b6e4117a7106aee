package harvest

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"threadharvest/lib/scrapers/reddit"
	"threadharvest/lib/telemetry"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = telemetry.Tracer("services/harvest")

// pauses between top-level listing fetches, each one targets a
// different page so they get a wider spread than detail fetches
var (
	subredditPause = reddit.DelayRange{Min: 5, Max: 10}
	searchPause    = reddit.DelayRange{Min: 3, Max: 7}
)

// subreddits whose top listings skew toward first-person narratives
var storytellingSubreddits = []string{
	"TIFU",
	"AmItheAsshole",
	"MaliciousCompliance",
	"relationship_advice",
	"ProRevenge",
	"pettyrevenge",
	"LetsNotMeet",
	"entitledparents",
}

// Service runs whole harvesting sessions: scrape every configured
// subreddit, filter for engagement, persist and export the survivors.
type Service struct {
	config    Config
	store     Store
	assembler *reddit.Assembler
	limiter   *reddit.RateLimiter
	filter    reddit.TimeFilter

	listingPause    reddit.DelayRange
	searchPause     reddit.DelayRange
	storySubreddits []string
}

func NewService(config Config, database *sql.DB) (*Service, error) {
	filter, err := reddit.ParseTimeFilter(config.TimeFilter)
	if err != nil {
		return nil, err
	}

	limiter := reddit.NewRateLimiter(config.RequestDelay, nil)

	policy := reddit.DefaultRetryPolicy()
	if config.MaxRetries > 0 {
		policy.MaxAttempts = config.MaxRetries
	}

	baseUrl := "https://www.reddit.com"
	if config.LegacyRendering() {
		baseUrl = "https://old.reddit.com"
	}
	debugDir := ""
	if config.Debug {
		debugDir = filepath.Join(config.OutputDirectory, "debug")
	}

	client, err := reddit.NewClient(reddit.ClientOptions{
		BaseUrl:     baseUrl,
		SessionFile: config.CookiesFile,
		Policy:      policy,
		Subjects:    append(config.Subreddits, storytellingSubreddits...),
		Limiter:     limiter,
		DebugDir:    debugDir,
	})
	if err != nil {
		return nil, err
	}

	pipeline, err := reddit.NewPipeline(reddit.PipelineOptions{
		FallbackScore: config.MinimumScore,
	})
	if err != nil {
		return nil, err
	}

	assembler := reddit.NewAssembler(reddit.AssemblerOptions{
		Client:          client,
		Pipeline:        pipeline,
		Limiter:         limiter,
		MinimumScore:    config.MinimumScore,
		UseLegacyLayout: config.LegacyRendering(),
	})

	return &Service{
		config:          config,
		store:           NewStore(database),
		assembler:       assembler,
		limiter:         limiter,
		filter:          filter,
		listingPause:    subredditPause,
		searchPause:     searchPause,
		storySubreddits: storytellingSubreddits,
	}, nil
}

type RunResult struct {
	RunId    string
	Threads  []reddit.ThreadRecord
	CsvPath  string
	JsonPath string
}

// Run performs one complete harvesting session over the configured
// subreddits. A subreddit that fails to scrape is logged and skipped,
// it never aborts the session.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "harvest:Run")
	defer span.End()
	span.SetAttributes(attribute.Int("subreddits", len(s.config.Subreddits)))

	if err := s.store.Init(ctx); err != nil {
		return RunResult{}, err
	}

	collected, err := s.assembleEach(ctx, s.config.Subreddits, s.listingPause,
		func(ctx context.Context, subreddit string) ([]reddit.ThreadRecord, error) {
			return s.assembler.Assemble(ctx, subreddit, s.filter)
		})
	if err != nil {
		return RunResult{}, err
	}

	qualifying := filterThreads(collected, s.config.MinimumScore, s.config.MinimumComments)
	slog.InfoContext(ctx, "harvest complete",
		"collected", len(collected), "qualifying", len(qualifying))
	if len(qualifying) == 0 {
		return RunResult{Threads: qualifying}, nil
	}

	runId, err := random.String(8)
	if err != nil {
		return RunResult{}, err
	}
	run := Run{
		Id:         runId,
		CreatedAt:  time.Now().UTC(),
		TimeFilter: s.filter,
		Threads:    qualifying,
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return RunResult{}, err
	}

	csvPath, jsonPath, err := ExportFiles(s.config.OutputDirectory, qualifying, run.CreatedAt)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{
		RunId:    runId,
		Threads:  qualifying,
		CsvPath:  csvPath,
		JsonPath: jsonPath,
	}, nil
}

// Viral scans the day filter of every configured subreddit for posts
// at or above minScore, sorted by score descending.
func (s *Service) Viral(ctx context.Context, minScore int) ([]reddit.ThreadRecord, error) {
	ctx, span := tracer.Start(ctx, "harvest:Viral")
	defer span.End()
	span.SetAttributes(attribute.Int("min_score", minScore))

	collected, err := s.assembleEach(ctx, s.config.Subreddits, s.listingPause,
		func(ctx context.Context, subreddit string) ([]reddit.ThreadRecord, error) {
			return s.assembler.Assemble(ctx, subreddit, reddit.TimeDay)
		})
	if err != nil {
		return nil, err
	}

	viral := filterThreads(collected, minScore, 0)
	sort.SliceStable(viral, func(i, j int) bool {
		return viral[i].Score > viral[j].Score
	})
	return viral, nil
}

// SearchKeywords scrapes the site-wide search listing for each keyword
// under the configured time filter.
func (s *Service) SearchKeywords(ctx context.Context, keywords []string) ([]reddit.ThreadRecord, error) {
	ctx, span := tracer.Start(ctx, "harvest:SearchKeywords")
	defer span.End()
	span.SetAttributes(attribute.Int("keywords", len(keywords)))

	collected, err := s.assembleEach(ctx, keywords, s.searchPause,
		func(ctx context.Context, keyword string) ([]reddit.ThreadRecord, error) {
			return s.assembler.AssembleSearch(ctx, keyword, s.filter)
		})
	if err != nil {
		return nil, err
	}
	return filterThreads(collected, s.config.MinimumScore, 0), nil
}

// Stories scrapes a preset of story-centric subreddits under the
// configured time filter, applying the usual engagement minimums.
func (s *Service) Stories(ctx context.Context) ([]reddit.ThreadRecord, error) {
	ctx, span := tracer.Start(ctx, "harvest:Stories")
	defer span.End()
	span.SetAttributes(attribute.Int("subreddits", len(s.storySubreddits)))

	collected, err := s.assembleEach(ctx, s.storySubreddits, s.listingPause,
		func(ctx context.Context, subreddit string) ([]reddit.ThreadRecord, error) {
			return s.assembler.Assemble(ctx, subreddit, s.filter)
		})
	if err != nil {
		return nil, err
	}
	return filterThreads(collected, s.config.MinimumScore, s.config.MinimumComments), nil
}

// assembleEach runs one assembly per target with a jittered pause
// between consecutive targets, skipping targets that fail. Only
// cancellation aborts the whole batch.
func (s *Service) assembleEach(
	ctx context.Context,
	targets []string,
	pause reddit.DelayRange,
	assemble func(ctx context.Context, target string) ([]reddit.ThreadRecord, error),
) ([]reddit.ThreadRecord, error) {
	var collected []reddit.ThreadRecord
	for i, target := range targets {
		if i > 0 {
			if err := s.limiter.Sleep(ctx, s.limiter.Jitter(pause)); err != nil {
				return nil, err
			}
		}

		records, err := assemble(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "failed to scrape target", "target", target, "err", err)
			continue
		}
		slog.InfoContext(ctx, "scraped target", "target", target, "count", len(records))
		collected = append(collected, records...)
	}
	return collected, nil
}

func filterThreads(records []reddit.ThreadRecord, minScore, minComments int) []reddit.ThreadRecord {
	qualifying := []reddit.ThreadRecord{}
	for _, rec := range records {
		if rec.Score >= minScore && rec.NumComments >= minComments {
			qualifying = append(qualifying, rec)
		}
	}
	return qualifying
}
