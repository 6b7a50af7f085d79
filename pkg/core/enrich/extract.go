package enrich

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateMarkers disqualify a paragraph from extraction outright.
var boilerplateMarkers = []string{
	"cookie", "subscribe", "sign up", "sign in", "newsletter",
	"all rights reserved", "terms of service", "privacy policy",
	"advertisement", "click here", "read more", "follow us",
	"javascript", "enable js",
}

func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ExtractArticleText pulls readable paragraphs out of an HTML document.
// Scripts, styles, and chrome elements are stripped; <article> paragraphs are
// preferred over loose <p> tags; short or boilerplate paragraphs are dropped.
func ExtractArticleText(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	doc.Find("script, style, nav, header, footer, aside, form, noscript").Remove()

	selection := doc.Find("article p")
	if selection.Length() == 0 {
		selection = doc.Find("p")
	}

	var paragraphs []string
	selection.Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(strings.Join(strings.Fields(s.Text()), " "))
		if len(text) < 40 || isBoilerplate(text) {
			return
		}
		paragraphs = append(paragraphs, text)
	})
	return paragraphs
}
