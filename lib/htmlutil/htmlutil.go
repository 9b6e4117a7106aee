package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses a selection's text into a single printable,
// whitespace-normalized string.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, node := range sel.Nodes {
		buffer.WriteString(GetText(node))
	}
	text := removeNonPrintable(buffer.String())
	text = innerWhitespace.ReplaceAllString(text, " ")
	return strings.Trim(text, " ")
}

// HasClassSubstring reports whether any class of the selection's first
// node contains the given substring, case-insensitively.
func HasClassSubstring(sel *goquery.Selection, substr string) bool {
	classes, ok := sel.Attr("class")
	if !ok {
		return false
	}
	substr = strings.ToLower(substr)
	for _, c := range strings.Fields(classes) {
		if strings.Contains(strings.ToLower(c), substr) {
			return true
		}
	}
	return false
}
