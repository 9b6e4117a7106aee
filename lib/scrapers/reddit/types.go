package reddit

import (
	"fmt"
	"time"
)

type TimeFilter string

const (
	TimeDay   TimeFilter = "day"
	TimeWeek  TimeFilter = "week"
	TimeMonth TimeFilter = "month"
	TimeYear  TimeFilter = "year"
	TimeAll   TimeFilter = "all"
)

func ParseTimeFilter(s string) (TimeFilter, error) {
	switch TimeFilter(s) {
	case TimeDay, TimeWeek, TimeMonth, TimeYear, TimeAll:
		return TimeFilter(s), nil
	}
	return "", fmt.Errorf("unknown time filter: %q", s)
}

// DeletedAuthor is the sentinel used when a comment author cannot be
// determined from markup.
const DeletedAuthor = "[deleted]"

type CommentRecord struct {
	Id     string `json:"comment_id"`
	Author string `json:"author"`
	Body   string `json:"body"`
	Score  int    `json:"score"`
	IsOP   bool   `json:"is_op"`
}

type ThreadRecord struct {
	Id          string          `json:"id"`
	Title       string          `json:"title"`
	Subreddit   string          `json:"subreddit"`
	Score       int             `json:"score"`
	NumComments int             `json:"num_comments"`
	CreatedAt   time.Time       `json:"created_utc"`
	Permalink   string          `json:"permalink"`
	Selftext    string          `json:"selftext"`
	TopComments []CommentRecord `json:"top_comments"`

	// set when the listing row was captured but detail enrichment failed
	DetailErr error `json:"-"`
}

// DelayRange is an inclusive wait window in seconds.
type DelayRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r DelayRange) Contains(d time.Duration) bool {
	secs := d.Seconds()
	return secs >= r.Min && secs <= r.Max
}

type RetryPolicy struct {
	MaxAttempts int
	// unit of the exponential backoff term, injectable so tests don't
	// spend real seconds sleeping
	BackoffUnit time.Duration
	// jitter added on top of the exponential term for network and
	// http-status retries
	NetworkJitter DelayRange
	// extended wait windows for anti-automation verdicts, these resolve
	// on a much slower timescale than transient network errors
	HeavyLoadDelay   DelayRange
	ChallengeDelay   DelayRange
	WrongDomainDelay DelayRange
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		BackoffUnit:      time.Second,
		NetworkJitter:    DelayRange{Min: 5, Max: 15},
		HeavyLoadDelay:   DelayRange{Min: 20, Max: 30},
		ChallengeDelay:   DelayRange{Min: 30, Max: 60},
		WrongDomainDelay: DelayRange{Min: 15, Max: 25},
	}
}

type FailureKind int

const (
	FailureNetwork FailureKind = iota
	FailureHttpStatus
	FailureAntiAutomation
	FailureUnexpectedContent
	FailureExhausted
	FailureExtraction
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureHttpStatus:
		return "http_status"
	case FailureAntiAutomation:
		return "anti_automation"
	case FailureUnexpectedContent:
		return "unexpected_content"
	case FailureExhausted:
		return "exhausted"
	case FailureExtraction:
		return "extraction"
	}
	return "unknown"
}

type FetchError struct {
	Kind FailureKind
	Url  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Url, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %s", e.Url, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
