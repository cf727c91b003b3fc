package extract

import (
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"
)

// pageMarkerRe matches the page separators the PDF extraction path
// inserts into extracted text.
var pageMarkerRe = regexp.MustCompile(`(?m)^--- Page (\d+) ---$`)

type pageStart struct {
	runeOffset int
	page       int
}

// PageMap resolves rune offsets in extracted text to page numbers using
// embedded "--- Page N ---" markers. Texts without markers resolve
// every offset to page 0 (unknown).
type PageMap struct {
	starts []pageStart
}

// NewPageMap scans text for page markers.
func NewPageMap(text string) *PageMap {
	matches := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	m := &PageMap{}
	for _, match := range matches {
		page, err := strconv.Atoi(text[match[2]:match[3]])
		if err != nil {
			continue
		}
		m.starts = append(m.starts, pageStart{
			runeOffset: utf8.RuneCountInString(text[:match[0]]),
			page:       page,
		})
	}
	return m
}

// HasPages reports whether any marker was found.
func (m *PageMap) HasPages() bool {
	return len(m.starts) > 0
}

// PageFor returns the page containing the given rune offset, or 0 when
// the offset precedes the first marker or no markers exist.
func (m *PageMap) PageFor(runeOffset int) int {
	i := sort.Search(len(m.starts), func(i int) bool {
		return m.starts[i].runeOffset > runeOffset
	})
	if i == 0 {
		return 0
	}
	return m.starts[i-1].page
}
