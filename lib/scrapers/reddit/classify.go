package reddit

import (
	"net/url"
	"strings"

	"threadharvest/lib/textutil"

	"github.com/antzucaro/matchr"
)

// Category is the classifier's verdict on a single response. The site
// frequently answers HTTP 200 for blocked or substituted content, so
// retry behavior keys off this, not the status code alone.
type Category int

const (
	CategorySuccess Category = iota
	CategoryHeavyLoad
	CategoryCaptchaOrLogin
	CategoryWrongDomain
	CategoryHttpError
)

func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryHeavyLoad:
		return "heavy_load"
	case CategoryCaptchaOrLogin:
		return "captcha_or_login"
	case CategoryWrongDomain:
		return "wrong_domain"
	case CategoryHttpError:
		return "http_error"
	}
	return "unknown"
}

// the synthetic overload page reddit redirects to under rate limiting
const heavyLoadPath = "/static/heavy-load"

var challengeMarkers = []string{
	"captcha",
	"human?",
	"verify",
	"log in",
	"sign in",
}

// Classifier decides what a response actually was. subjects are the
// subreddit or search names requested this run, their presence in a
// page title counts as evidence we got the right site.
type Classifier struct {
	subjects []string
}

func NewClassifier(subjects []string) Classifier {
	normalized := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if n := textutil.NormalizeName(s); n != "" {
			normalized = append(normalized, n)
		}
	}
	return Classifier{subjects: normalized}
}

func (c Classifier) Classify(status int, finalURL *url.URL, title string) Category {
	if status != 200 {
		return CategoryHttpError
	}
	if finalURL != nil && strings.Contains(finalURL.Path, heavyLoadPath) {
		return CategoryHeavyLoad
	}
	if textutil.ContainsAnyFold(title, challengeMarkers) {
		return CategoryCaptchaOrLogin
	}
	if !c.plausibleTitle(title) {
		return CategoryWrongDomain
	}
	return CategorySuccess
}

// plausibleTitle checks whether a page title could belong to the
// target site: the site name, the legacy listing title separator, or
// any requested subject (exact or near-miss, titles regularly carry
// decorated subreddit names).
func (c Classifier) plausibleTitle(title string) bool {
	if strings.Contains(strings.ToLower(title), "reddit") {
		return true
	}
	// legacy listing titles look like "top scoring links : subreddit"
	if strings.Contains(title, " : ") {
		return true
	}

	if textutil.MatchName(title, c.subjects) {
		return true
	}
	for _, token := range tokenize(strings.ToLower(title)) {
		for _, subject := range c.subjects {
			if len(subject) >= 5 && matchr.DamerauLevenshtein(token, subject) <= 2 {
				return true
			}
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
