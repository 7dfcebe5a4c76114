package scraper

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/globidx-search/models"
)

// SearchPath is the search endpoint relative to the site root.
const SearchPath = "globalindex_en.html"

const (
	sortField     = "Jahr"
	sortAscending = "asc"
	pageParam     = "page_l98"
)

// BuildQuery encodes the search parameters for the given zero-based page.
// Page 0 is the site's implicit first page and carries no page parameter.
func BuildQuery(q models.Query, page int) string {
	q = q.Clamped()
	params := [][2]string{
		{"per_page", strconv.Itoa(q.PageSize)},
		{"Name", q.Surname},
		{"Vornamen", q.Forename},
		{"Ort", q.Place},
		{"JahrVon", strconv.Itoa(q.BeginYear)},
		{"JahrBis", strconv.Itoa(q.EndYear)},
		{"order_by", sortField},
		{"sort", sortAscending},
	}
	if page > 0 {
		params = append(params, [2]string{pageParam, strconv.Itoa(page)})
	}

	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// SearchURL returns the absolute search URL for page under siteURL.
func SearchURL(siteURL string, q models.Query, page int) string {
	return strings.TrimRight(siteURL, "/") + "/" + SearchPath + "?" + BuildQuery(q, page)
}
