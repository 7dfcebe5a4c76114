package parser

import (
	"testing"
)

func TestParseResultCount(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{name: "zero", input: "<p>Ergebnisse: 0</p>", want: 0, wantOK: true},
		{name: "with spacing", input: "Ergebnisse:\n   25 Treffer", want: 25, wantOK: true},
		{name: "no space", input: "Ergebnisse:1234", want: 1234, wantOK: true},
		{name: "first match wins", input: "Ergebnisse: 7 ... Ergebnisse: 9", want: 7, wantOK: true},
		{name: "absent", input: "<p>Keine Treffer</p>", want: 0, wantOK: false},
		{name: "label without number", input: "Ergebnisse: viele", want: 0, wantOK: false},
		{name: "overflow", input: "Ergebnisse: 99999999999999999999999", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseResultCount(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseResultCount(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParsePageCount(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{name: "simple", input: "Seite 1 von 3", want: 3, wantOK: true},
		{name: "tight", input: "Seite2von17", want: 17, wantOK: true},
		{name: "absent", input: "Page 1 of 3", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePageCount(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParsePageCount(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseCounts(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantRows  int
		wantPages int
	}{
		{name: "rows and pages", input: "Ergebnisse: 25 Seite 1 von 3", wantRows: 25, wantPages: 3},
		{name: "rows without pager", input: "Ergebnisse: 4", wantRows: 4, wantPages: 1},
		{name: "zero rows ignores pager", input: "Ergebnisse: 0 Seite 1 von 3", wantRows: 0, wantPages: 0},
		{name: "nothing", input: "<html></html>", wantRows: 0, wantPages: 0},
		{name: "non-breaking spaces", input: "<p>Ergebnisse:\u00a025</p><p>Seite\u00a01\u00a0von\u00a03</p>", wantRows: 25, wantPages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, pages := ParseCounts(tt.input)
			if rows != tt.wantRows || pages != tt.wantPages {
				t.Errorf("ParseCounts(%q) = %d, %d, want %d, %d", tt.input, rows, pages, tt.wantRows, tt.wantPages)
			}
		})
	}
}

func TestNormalizeYear(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "qualified year", input: "1850uSomeQualifier", expected: "1850"},
		{name: "bare u suffix", input: "1791u", expected: "1791"},
		{name: "circa", input: "circa 1850", expected: "circa 1850"},
		{name: "plain year", input: "1850", expected: "1850"},
		{name: "leading space", input: " 1850u", expected: " 1850u"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeYear(tt.input); got != tt.expected {
				t.Errorf("NormalizeYear(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveLink(t *testing.T) {
	const site = "https://www.stolp.de"
	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{name: "rooted path", href: "/records/42", expected: "https://www.stolp.de/records/42"},
		{name: "relative path", href: "globalindex_en.html?id=42", expected: "https://www.stolp.de/globalindex_en.html?id=42"},
		{name: "https", href: "https://example.org/r/1", expected: "https://example.org/r/1"},
		{name: "http upper case", href: "HTTP://EXAMPLE.ORG/r/1", expected: "HTTP://EXAMPLE.ORG/r/1"},
		{name: "mixed case", href: "HtTpS://example.org/r/1", expected: "HtTpS://example.org/r/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveLink(site, tt.href); got != tt.expected {
				t.Errorf("ResolveLink(%q) = %q, want %q", tt.href, got, tt.expected)
			}
		})
	}

	if got := ResolveLink(site+"/", "/records/42"); got != "https://www.stolp.de/records/42" {
		t.Errorf("trailing slash site: got %q", got)
	}
}
