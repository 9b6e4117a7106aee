package reddit

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestNormalizeScore(t *testing.T) {
	testCases := []struct {
		text     string
		fallback int
		expected int
	}{
		{text: "1.2k", fallback: 300, expected: 1200},
		{text: "1.2K", fallback: 300, expected: 1200},
		{text: "2.5m", fallback: 300, expected: 2500000},
		{text: "842", fallback: 300, expected: 842},
		{text: "12,345", fallback: 300, expected: 12345},
		{text: "842 points", fallback: 300, expected: 842},
		{text: " 56k ", fallback: 300, expected: 56000},
		{text: "•", fallback: 300, expected: 300},
		{text: "", fallback: 300, expected: 300},
		{text: "k", fallback: 300, expected: 300},
		{text: "no score here", fallback: 150, expected: 150},
	}

	for _, test := range testCases {
		got := NormalizeScore(test.text, test.fallback)
		if got != test.expected {
			t.Errorf("NormalizeScore(%q) = %d, expected %d", test.text, got, test.expected)
		}
	}
}

func TestAbsolutePermalink(t *testing.T) {
	p, err := NewPipeline(PipelineOptions{FallbackScore: 300})
	require.NoError(t, err)

	testCases := []struct {
		href     string
		expected string
		ok       bool
	}{
		{
			href:     "/r/foo/comments/abc123/title/",
			expected: "https://www.reddit.com/r/foo/comments/abc123/title/",
			ok:       true,
		},
		{
			href:     "https://old.reddit.com/r/foo/comments/abc123/title/",
			expected: "https://old.reddit.com/r/foo/comments/abc123/title/",
			ok:       true,
		},
		{href: "/r/foo/wiki/index", ok: false},
		{href: "r/foo/comments/abc123/title/", ok: false},
		{href: "", ok: false},
	}

	for _, test := range testCases {
		got, ok := p.absolutePermalink(test.href)
		require.Equal(t, test.ok, ok, "href %q", test.href)
		require.Equal(t, test.expected, got, "href %q", test.href)
		require.NotContains(t, strings.TrimPrefix(got, "https://"), "//")
	}
}

const legacyListingHtml = `
<html><head><title>top scoring links : golang</title></head><body>
<div id="siteTable">
	<div class="thing stickied" id="thing_t3_pinn3d">
		<a class="title" href="/r/golang/comments/pinn3d/weekly_thread/">Weekly discussion thread</a>
		<div class="score unvoted" title="9999">9.9k</div>
	</div>
	<div class="thing link" id="thing_t3_abc123">
		<a class="title" href="/r/golang/comments/abc123/generics_in_practice/">Generics in practice</a>
		<div class="score unvoted" title="1543">1.5k</div>
	</div>
	<div class="thing link" id="thing_t3_def456">
		<a class="title" href="https://old.reddit.com/r/golang/comments/def456/why_channels/">Why channels are enough</a>
		<div class="score unvoted">1.2k</div>
	</div>
</div>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

var ignoreVolatileFields = cmpopts.IgnoreFields(ThreadRecord{}, "CreatedAt", "DetailErr")

func TestListingLegacyLayout(t *testing.T) {
	p, err := NewPipeline(PipelineOptions{FallbackScore: 300})
	require.NoError(t, err)

	records := p.Listing(mustDoc(t, legacyListingHtml), "golang")

	expected := []ThreadRecord{
		{
			Id:          "abc123",
			Title:       "Generics in practice",
			Subreddit:   "golang",
			Score:       1543,
			Permalink:   "https://www.reddit.com/r/golang/comments/abc123/generics_in_practice/",
			TopComments: []CommentRecord{},
		},
		{
			Id:          "def456",
			Title:       "Why channels are enough",
			Subreddit:   "golang",
			Score:       1200,
			Permalink:   "https://old.reddit.com/r/golang/comments/def456/why_channels/",
			TopComments: []CommentRecord{},
		},
	}
	diff := cmp.Diff(expected, records, ignoreVolatileFields)
	if diff != "" {
		t.Fatal(diff)
	}
}

const modernListingHtml = `
<html><head><title>r/golang - top posts</title></head><body>
<div id="t3_xyz789" class="Post">
	<h3>Modern layout post title</h3>
	<a href="/r/golang/comments/xyz789/modern_layout_post/">842 comments</a>
	<span class="score">12.5k</span>
</div>
</body></html>`

func TestListingModernLayout(t *testing.T) {
	p, err := NewPipeline(PipelineOptions{FallbackScore: 300})
	require.NoError(t, err)

	records := p.Listing(mustDoc(t, modernListingHtml), "golang")

	require.Len(t, records, 1)
	require.Equal(t, "xyz789", records[0].Id)
	require.Equal(t, "Modern layout post title", records[0].Title)
	require.Equal(t, 12500, records[0].Score)
	require.Equal(t, "https://www.reddit.com/r/golang/comments/xyz789/modern_layout_post/", records[0].Permalink)
}

const bareLinksHtml = `
<html><head><title>r/golang</title></head><body>
<p><a href="/r/golang/comments/link01/a_story_worth_reading/">A story worth reading about build tags</a></p>
<p><a href="/r/golang/comments/link01/a_story_worth_reading/">dupe</a></p>
<p><a href="/r/golang/comments/link02/x/">meh</a></p>
</body></html>`

func TestListingLinkScanFallback(t *testing.T) {
	p, err := NewPipeline(PipelineOptions{FallbackScore: 300})
	require.NoError(t, err)

	records := p.Listing(mustDoc(t, bareLinksHtml), "golang")

	require.Len(t, records, 1)
	require.Equal(t, "link01", records[0].Id)
	require.Equal(t, "A story worth reading about build tags", records[0].Title)
	// no score markup anywhere near a bare link
	require.Equal(t, 300, records[0].Score)
}

type recordingStrategy struct {
	calls   int
	records []ThreadRecord
}

func (s *recordingStrategy) name() string { return "recording" }

func (s *recordingStrategy) extract(_ *Pipeline, _ *goquery.Document, _ string) []ThreadRecord {
	s.calls++
	return s.records
}

func TestListingShortCircuits(t *testing.T) {
	p, err := NewPipeline(PipelineOptions{FallbackScore: 300})
	require.NoError(t, err)

	first := &recordingStrategy{records: []ThreadRecord{{Id: "a"}}}
	second := &recordingStrategy{records: []ThreadRecord{{Id: "b"}}}
	third := &recordingStrategy{}
	p.strategies = []listingStrategy{first, second, third}

	records := p.Listing(mustDoc(t, "<html><body></body></html>"), "golang")

	require.Len(t, records, 1)
	require.Equal(t, "a", records[0].Id)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 0, second.calls)
	require.Equal(t, 0, third.calls)
}

const detailHtml = `
<html><head><title>Generics in practice : golang</title></head><body>
<div class="expando selftext"><div class="md"><p>The full story body text.</p></div></div>
<a class="bylink">128 comments</a>
<div class="sitetable">
	<div class="thing comment" id="thing_t1_c1">
		<a class="author">user1</a>
		<div class="md"><p>First comment body.</p></div>
	</div>
	<div class="thing comment deleted" id="thing_t1_c2">
		<div class="md"><p>[removed]</p></div>
	</div>
	<div class="thing comment" id="thing_t1_c3">
		<a class="author submitter">opuser</a>
		<div class="md"><p>Reply from the author.</p></div>
	</div>
</div>
</body></html>`

func TestDetailExtraction(t *testing.T) {
	p, err := NewPipeline(PipelineOptions{FallbackScore: 300})
	require.NoError(t, err)

	detail := p.Detail(mustDoc(t, detailHtml))

	require.Equal(t, "The full story body text.", detail.Selftext)
	require.Equal(t, 128, detail.NumComments)

	expected := []CommentRecord{
		{Id: "comment_0", Author: "user1", Body: "First comment body."},
		{Id: "comment_1", Author: "opuser", Body: "Reply from the author.", IsOP: true},
	}
	diff := cmp.Diff(expected, detail.Comments)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestDetailCommentLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body><div class='sitetable'>")
	for i := 0; i < 15; i++ {
		sb.WriteString(`<div class="thing comment"><a class="author">u</a><div class="md">body text</div></div>`)
	}
	sb.WriteString("</div></body></html>")

	p, err := NewPipeline(PipelineOptions{FallbackScore: 300})
	require.NoError(t, err)

	detail := p.Detail(mustDoc(t, sb.String()))
	require.Len(t, detail.Comments, maxTopComments)
}

func TestExtractIdFallbacks(t *testing.T) {
	// permalink-embedded id
	doc := mustDoc(t, `<div class="x"><a href="/r/golang/comments/fromurl/t/">A sufficiently long title here</a></div>`)
	sel := doc.Find("div.x")
	require.Equal(t, "fromurl", extractId(sel, "https://www.reddit.com/r/golang/comments/fromurl/t/", 0))

	// attribute-embedded id wins over the permalink
	doc = mustDoc(t, `<div class="x" data-fullname="t3_fromattr"><a href="/r/golang/comments/other/t/">A sufficiently long title here</a></div>`)
	sel = doc.Find("div.x")
	require.Equal(t, "fromattr", extractId(sel, "https://www.reddit.com/r/golang/comments/other/t/", 0))

	// synthetic placeholder as last resort
	doc = mustDoc(t, `<div class="x"></div>`)
	sel = doc.Find("div.x")
	require.Equal(t, "unknown_4", extractId(sel, "", 4))
}
