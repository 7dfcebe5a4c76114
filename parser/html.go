package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/globidx-search/models"
)

var (
	// ErrMissingElement is returned when an expected table or section is absent.
	ErrMissingElement = errors.New("parser: missing element")
	// ErrMalformedRow is returned when a table row does not match its header.
	ErrMalformedRow = errors.New("parser: malformed row")
)

// ParseListing reads the result table of a search page. Each row becomes a
// record keyed by column header; the more-info column contributes the
// resolved detail link under LinkField.
func ParseListing(body []byte, siteURL string) ([]*models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	table := doc.Find("table.all_records").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: table.all_records", ErrMissingElement)
	}
	headerRow := table.Find("thead tr").First()
	if headerRow.Length() == 0 {
		return nil, fmt.Errorf("%w: all_records header row", ErrMissingElement)
	}
	headers := headerRow.ChildrenFiltered("th").Map(func(_ int, s *goquery.Selection) string {
		return s.Text()
	})
	tbody := table.ChildrenFiltered("tbody").First()
	if tbody.Length() == 0 {
		return nil, fmt.Errorf("%w: all_records body", ErrMissingElement)
	}

	var (
		records []*models.Record
		rowErr  error
	)
	tbody.ChildrenFiltered("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() != len(headers) {
			rowErr = fmt.Errorf("%w: row %d has %d cells for %d headers", ErrMalformedRow, i, cells.Length(), len(headers))
			return false
		}

		record := models.NewRecord()
		cells.EachWithBreak(func(j int, td *goquery.Selection) bool {
			if headers[j] != MoreInfoHeader {
				record.Set(headers[j], td.Text())
				return true
			}
			href, ok := td.Find("a").First().Attr("href")
			if !ok {
				rowErr = fmt.Errorf("%w: row %d has no detail link", ErrMalformedRow, i)
				return false
			}
			record.Set(LinkField, ResolveLink(siteURL, href))
			return true
		})
		if rowErr != nil {
			return false
		}
		records = append(records, record)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return records, nil
}

// ParseDetail reads the label/value pairs of a single-record page.
func ParseDetail(body []byte) ([]models.Field, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}

	table := doc.Find("table.single_record").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: table.single_record", ErrMissingElement)
	}
	tbody := table.ChildrenFiltered("tbody").First()
	if tbody.Length() == 0 {
		return nil, fmt.Errorf("%w: single_record body", ErrMissingElement)
	}

	var (
		fields []models.Field
		rowErr error
	)
	tbody.ChildrenFiltered("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		label := tr.Find("th.label").First()
		value := tr.Find("td.value").First()
		if label.Length() == 0 || value.Length() == 0 {
			rowErr = fmt.Errorf("%w: detail row %d lacks label or value", ErrMalformedRow, i)
			return false
		}
		field := models.Field{Label: label.Text(), Value: value.Text()}
		if field.Label == YearLabel {
			field.Value = NormalizeYear(field.Value)
		}
		fields = append(fields, field)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return fields, nil
}
