package extract

import (
	"html"
	"regexp"
	"strings"
)

// Script and style blocks go first so their bodies never survive tag stripping. An unclosed
// block, checked once comments are gone, runs to the end of the document.
var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	openScript  = regexp.MustCompile(`(?is)<script\b[^>]*>.*$`)
	openStyle   = regexp.MustCompile(`(?is)<style\b[^>]*>.*$`)
	comments    = regexp.MustCompile(`(?s)<!--.*?-->`)
	allTags     = regexp.MustCompile(`<[^>]+>`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// StripMarkup reduces an HTML document to its visible text with whitespace collapsed.
func StripMarkup(doc string) string {
	doc = scriptBlock.ReplaceAllString(doc, " ")
	doc = styleBlock.ReplaceAllString(doc, " ")
	doc = comments.ReplaceAllString(doc, " ")
	doc = openScript.ReplaceAllString(doc, " ")
	doc = openStyle.ReplaceAllString(doc, " ")
	doc = allTags.ReplaceAllString(doc, " ")
	doc = html.UnescapeString(doc)
	doc = whitespace.ReplaceAllString(doc, " ")
	return strings.TrimSpace(doc)
}
