package reddit

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"threadharvest/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const defaultOrigin = "https://www.reddit.com"

const maxTopComments = 10

var (
	postPathRegex  = regexp.MustCompile(`/comments/([a-z0-9]+)/`)
	idAttrRegex    = regexp.MustCompile(`(?:t3_|post_)([a-z0-9]+)`)
	scoreTextRegex = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?\s*[km]?)(?:\s*(?:points|upvotes|votes))?`)
	nonDigitRegex  = regexp.MustCompile(`[^\d]`)

	commentCountRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d[\d,]*)\s+comments`),
		regexp.MustCompile(`(?i)comments\s*\((\d+)\)`),
	}
)

// NormalizeScore converts a human-readable score like "1.2k" into an
// exact integer. Text with no parseable numeric content yields the
// fallback instead of zero, so unparseable-but-likely-popular posts
// don't get systematically discarded downstream.
func NormalizeScore(text string, fallback int) int {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.ReplaceAll(t, ",", "")
	t = strings.ReplaceAll(t, " ", "")

	multiplier := 0.0
	switch {
	case strings.HasSuffix(t, "k"):
		multiplier = 1_000
		t = strings.TrimSuffix(t, "k")
	case strings.HasSuffix(t, "m"):
		multiplier = 1_000_000
		t = strings.TrimSuffix(t, "m")
	}
	if multiplier > 0 {
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return fallback
		}
		return int(f * multiplier)
	}

	digits := nonDigitRegex.ReplaceAllString(t, "")
	if digits == "" {
		return fallback
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return fallback
	}
	return n
}

type PipelineOptions struct {
	// canonical site origin relative permalinks are joined to,
	// defaults to https://www.reddit.com
	Origin string
	// score assigned when no numeric score can be extracted
	FallbackScore int
}

// Pipeline extracts structured fields from listing and detail
// documents. Listing extraction tries an ordered chain of layout
// strategies and accepts the first one that produces candidates;
// strategies are never merged within one call since mixing
// partially-applicable heuristics corrupts field alignment.
type Pipeline struct {
	origin        *url.URL
	fallbackScore int
	strategies    []listingStrategy
}

func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Origin == "" {
		opts.Origin = defaultOrigin
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		origin:        origin,
		fallbackScore: opts.FallbackScore,
		strategies: []listingStrategy{
			legacyLayoutStrategy{},
			modernLayoutStrategy{},
			linkScanStrategy{},
		},
	}, nil
}

type listingStrategy interface {
	name() string
	// returns one partial record per post-shaped element, or nothing
	// when the layout doesn't apply to this document
	extract(p *Pipeline, doc *goquery.Document, subreddit string) []ThreadRecord
}

// Listing runs the strategy chain over a listing document. Records come
// back in source order with detail fields empty.
func (p *Pipeline) Listing(doc *goquery.Document, subreddit string) []ThreadRecord {
	for _, s := range p.strategies {
		records := s.extract(p, doc, subreddit)
		if len(records) > 0 {
			slog.Debug("listing strategy matched", "strategy", s.name(), "count", len(records))
			return records
		}
	}
	slog.Debug("no listing strategy produced candidates", "subreddit", subreddit)
	return nil
}

// absolutePermalink normalizes a permalink candidate. Absolute urls
// pass through, root-relative paths are joined to the canonical
// origin, anything without a recognizable post path is discarded.
func (p *Pipeline) absolutePermalink(href string) (string, bool) {
	if !postPathRegex.MatchString(href) {
		return "", false
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, true
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimSuffix(p.origin.String(), "/") + href, true
	}
	return "", false
}

// candidateRecord extracts the per-candidate fields through their own
// locator cascades. The cascades are independent of which top-level
// layout strategy matched: a given layout variant may still encode an
// individual field using another variant's convention.
func (p *Pipeline) candidateRecord(sel *goquery.Selection, subreddit string, ordinal int) (ThreadRecord, bool) {
	permalink, ok := p.absolutePermalink(extractPermalinkHref(sel))
	if !ok {
		return ThreadRecord{}, false
	}
	return ThreadRecord{
		Id:          extractId(sel, permalink, ordinal),
		Title:       extractTitle(sel),
		Subreddit:   subreddit,
		Score:       p.extractScore(sel),
		CreatedAt:   time.Now().UTC(),
		Permalink:   permalink,
		TopComments: []CommentRecord{},
	}, true
}

func extractPermalinkHref(sel *goquery.Selection) string {
	if href, ok := sel.Find("a.title").First().Attr("href"); ok {
		return href
	}
	if href, ok := sel.Find(`a[href*="/comments/"]`).First().Attr("href"); ok {
		return href
	}
	return sel.AttrOr("href", "")
}

func extractTitle(sel *goquery.Selection) string {
	if t := htmlutil.CleanText(sel.Find("a.title").First()); t != "" {
		return t
	}
	for _, tag := range []string{"h1", "h2", "h3"} {
		if t := htmlutil.CleanText(sel.Find(tag).First()); t != "" {
			return t
		}
	}

	title := "Unknown Title"
	sel.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if t := htmlutil.CleanText(a); len(t) > 15 {
			title = t
			return false
		}
		return true
	})
	return title
}

func (p *Pipeline) extractScore(sel *goquery.Selection) int {
	// the legacy score div carries the exact count in its title attribute
	scoreDiv := sel.Find("div.score").First()
	if title, ok := scoreDiv.Attr("title"); ok {
		if n, err := strconv.Atoi(title); err == nil {
			return n
		}
	}
	if t := htmlutil.CleanText(scoreDiv); t != "" {
		return NormalizeScore(t, p.fallbackScore)
	}

	for _, selector := range []string{
		`span[class*=upvote]`,
		`span[class*=score]`,
		`[class*=score]`,
	} {
		if t := htmlutil.CleanText(sel.Find(selector).First()); t != "" {
			return NormalizeScore(t, p.fallbackScore)
		}
	}

	// last resort: anything score-shaped in the element's text
	if m := scoreTextRegex.FindStringSubmatch(htmlutil.CleanText(sel)); m != nil {
		return NormalizeScore(m[1], p.fallbackScore)
	}
	return p.fallbackScore
}

// extractId cascades from structural attributes to the permalink to a
// synthetic placeholder, it never fails terminally.
func extractId(sel *goquery.Selection, permalink string, ordinal int) string {
	if id, ok := sel.Attr("id"); ok {
		if m := idAttrRegex.FindStringSubmatch(id); m != nil {
			return m[1]
		}
	}
	if len(sel.Nodes) > 0 {
		for _, attr := range sel.Nodes[0].Attr {
			if m := idAttrRegex.FindStringSubmatch(attr.Val); m != nil {
				return m[1]
			}
		}
	}
	if m := postPathRegex.FindStringSubmatch(permalink); m != nil {
		return m[1]
	}
	return fmt.Sprintf("unknown_%d", ordinal)
}

// legacyLayoutStrategy targets the stable old-reddit rendering where
// every post sits in a div.thing.
type legacyLayoutStrategy struct{}

func (legacyLayoutStrategy) name() string { return "legacy" }

func (legacyLayoutStrategy) extract(p *Pipeline, doc *goquery.Document, subreddit string) []ThreadRecord {
	var records []ThreadRecord
	doc.Find("div.thing").Each(func(_ int, sel *goquery.Selection) {
		// stickies, ads and announcements are not organic listing content
		if sel.HasClass("stickied") || sel.HasClass("promoted") {
			return
		}
		if rec, ok := p.candidateRecord(sel, subreddit, len(records)); ok {
			records = append(records, rec)
		}
	})
	return records
}

// modernLayoutStrategy targets the component-based rendering, probing
// the id/class/element conventions it has cycled through.
type modernLayoutStrategy struct{}

func (modernLayoutStrategy) name() string { return "modern" }

var modernPostSelectors = []string{
	`div[id^=t3_], div[id^=post_]`,
	`div[class*=Post], div[class*=post]`,
	`article`,
	`shreddit-post`,
}

func (modernLayoutStrategy) extract(p *Pipeline, doc *goquery.Document, subreddit string) []ThreadRecord {
	var posts *goquery.Selection
	for _, selector := range modernPostSelectors {
		posts = doc.Find(selector)
		if posts.Length() > 0 {
			break
		}
	}
	if posts == nil || posts.Length() == 0 {
		return nil
	}

	var records []ThreadRecord
	posts.Each(func(_ int, sel *goquery.Selection) {
		if rec, ok := p.candidateRecord(sel, subreddit, len(records)); ok {
			records = append(records, rec)
		}
	})
	return records
}

// linkScanStrategy is the last resort: any anchor pointing at a
// canonical post path counts as a candidate.
type linkScanStrategy struct{}

func (linkScanStrategy) name() string { return "link_scan" }

func (linkScanStrategy) extract(p *Pipeline, doc *goquery.Document, subreddit string) []ThreadRecord {
	seen := map[string]bool{}
	var records []ThreadRecord

	doc.Find(`a[href*="/comments/"]`).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if href == "" || seen[href] {
			return
		}
		seen[href] = true

		title := htmlutil.CleanText(a)
		if title == "" {
			for _, tag := range []string{"h3", "h2", "h1"} {
				if t := htmlutil.CleanText(a.Find(tag).First()); t != "" {
					title = t
					break
				}
			}
		}
		// bare vote/comment links carry no usable title
		if len(title) <= 5 {
			return
		}

		permalink, ok := p.absolutePermalink(href)
		if !ok {
			return
		}
		id := fmt.Sprintf("unknown_%d", len(records))
		if m := postPathRegex.FindStringSubmatch(permalink); m != nil {
			id = m[1]
		}

		records = append(records, ThreadRecord{
			Id:        id,
			Title:     title,
			Subreddit: subreddit,
			// no score markup near a bare link, assume just-popular-enough
			Score:       p.fallbackScore,
			CreatedAt:   time.Now().UTC(),
			Permalink:   permalink,
			TopComments: []CommentRecord{},
		})
	})
	return records
}

type DetailFields struct {
	Selftext    string
	NumComments int
	Comments    []CommentRecord
}

// Detail pulls body text, comment count and top comments from a post's
// detail page, each through its own cascade. Absence of any of them
// never invalidates fields already captured from the listing.
func (p *Pipeline) Detail(doc *goquery.Document) DetailFields {
	return DetailFields{
		Selftext:    extractSelftext(doc),
		NumComments: extractCommentCount(doc),
		Comments:    extractComments(doc),
	}
}

func extractSelftext(doc *goquery.Document) string {
	for _, selector := range []string{
		`[class*=selftext]`,
		`[class*=post-content], [class*=Post-content]`,
		`[class*=post-body], [class*=Post-body]`,
		`.md`,
	} {
		if t := htmlutil.CleanText(doc.Find(selector).First()); t != "" {
			return t
		}
	}
	return ""
}

func extractCommentCount(doc *goquery.Document) int {
	if t := htmlutil.CleanText(doc.Find(`[class*=comments-count]`).First()); t != "" {
		if n := NormalizeScore(t, -1); n >= 0 {
			return n
		}
	}

	body := doc.Find("body").Text()
	for _, re := range commentCountRegexes {
		if m := re.FindStringSubmatch(body); m != nil {
			digits := strings.ReplaceAll(m[1], ",", "")
			if n, err := strconv.Atoi(digits); err == nil {
				return n
			}
		}
	}
	return 0
}

var commentContainerSelectors = []string{
	`[class*=Comment]`,
	`[class*=comment]`,
	`div.thing.comment`,
}

var commentBodySelectors = []string{
	`.md`,
	`[class*=body], [class*=Body]`,
	`[class*=content], [class*=Content]`,
}

func extractComments(doc *goquery.Document) []CommentRecord {
	var containers *goquery.Selection
	for _, selector := range commentContainerSelectors {
		containers = doc.Find(selector)
		if containers.Length() > 0 {
			break
		}
	}
	if containers == nil {
		return nil
	}

	var comments []CommentRecord
	containers.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(comments) >= maxTopComments {
			return false
		}
		if sel.HasClass("deleted") || sel.HasClass("removed") {
			return true
		}

		body := ""
		for _, selector := range commentBodySelectors {
			if t := htmlutil.CleanText(sel.Find(selector).First()); t != "" {
				body = t
				break
			}
		}
		if body == "" {
			return true
		}

		author := DeletedAuthor
		authorSel := sel.Find(`[class*=author]`).First()
		if t := htmlutil.CleanText(authorSel); t != "" {
			author = t
		}
		isOP := sel.Find(`[class*=submitter]`).Length() > 0 ||
			htmlutil.HasClassSubstring(authorSel, "submitter")

		comments = append(comments, CommentRecord{
			Id:     fmt.Sprintf("comment_%d", len(comments)),
			Author: author,
			Body:   body,
			IsOP:   isOP,
		})
		return true
	})
	return comments
}
