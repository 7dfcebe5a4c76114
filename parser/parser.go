// Package parser extracts counts, rows and detail fields from Globalindex pages.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// YearLabel is the detail-page label whose value is normalised to a bare year.
	YearLabel = "Jahr"
	// MoreInfoHeader is the header text of the listing column holding the detail link.
	MoreInfoHeader = "\u00a0"
	// LinkField is the record field that stores the resolved detail link.
	LinkField = "URL"
)

// The site pads counts with non-breaking spaces as well as ASCII ones.
var (
	resultCountRe = regexp.MustCompile(`Ergebnisse:[\s\p{Zs}]*(\d+)`)
	pageCountRe   = regexp.MustCompile(`Seite[\s\p{Zs}]*(\d+)[\s\p{Zs}]*von[\s\p{Zs}]*(\d+)`)
	yearRe        = regexp.MustCompile(`^(\d{4})u`)
	absoluteRe    = regexp.MustCompile(`(?i)^http`)
)

// ParseResultCount finds the total number of results ("Ergebnisse: N").
func ParseResultCount(text string) (int, bool) {
	m := resultCountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParsePageCount finds Y in "Seite X von Y".
func ParsePageCount(text string) (int, bool) {
	m := pageCountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseCounts returns the number of result rows and pages announced on the
// first result page. A missing row count means no results; a missing page
// count with results present means a single page.
func ParseCounts(text string) (rows, pages int) {
	rows, _ = ParseResultCount(text)
	if rows <= 0 {
		return 0, 0
	}
	pages, ok := ParsePageCount(text)
	if !ok {
		pages = 1
	}
	return rows, pages
}

// NormalizeYear reduces values such as "1850u..." to "1850". Anything else
// is returned unchanged.
func NormalizeYear(value string) string {
	if m := yearRe.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	return value
}

// ResolveLink makes href absolute against siteURL unless it already starts
// with "http" in any case.
func ResolveLink(siteURL, href string) string {
	if absoluteRe.MatchString(href) {
		return href
	}
	return strings.TrimRight(siteURL, "/") + "/" + strings.TrimLeft(href, "/")
}
