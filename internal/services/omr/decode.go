package omr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"brickkit/internal/catalog"
)

// DefaultVariantLabel names download links that carry no text.
const DefaultVariantLabel = "Main Model"

// row is one search-result table row as extracted in the page.
type row struct {
	SetNumber string `json:"set_number"`
	Name      string `json:"name"`
	Theme     string `json:"theme"`
	YearText  string `json:"year_text"`
	DetailURL string `json:"detail_url"`
}

// link is one download anchor as extracted in the page.
type link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// ParseYear returns the first four-digit number in text.
func ParseYear(text string) *int {
	match := yearPattern.FindString(text)
	if match == "" {
		return nil
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &year
}

// DecodeRows converts extracted table rows into candidates. Rows without a
// set number or name are dropped.
func DecodeRows(raw []byte) ([]catalog.Candidate, error) {
	var rows []row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode search rows: %w", err)
	}
	candidates := make([]catalog.Candidate, 0, len(rows))
	for _, r := range rows {
		id := strings.TrimSpace(r.SetNumber)
		name := strings.TrimSpace(r.Name)
		if id == "" || name == "" {
			continue
		}
		candidates = append(candidates, catalog.Candidate{
			ID:          id,
			DisplayName: name,
			Category:    strings.TrimSpace(r.Theme),
			ReleaseYear: ParseYear(r.YearText),
			DetailRef:   strings.TrimSpace(r.DetailURL),
		})
	}
	return candidates, nil
}

// DecodeLinks converts extracted download anchors into variants. Links that
// point at neither a download endpoint nor a model file are ignored, as are
// repeats of an earlier href.
func DecodeLinks(raw []byte) ([]catalog.Variant, error) {
	var links []link
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("decode download links: %w", err)
	}
	seen := make(map[string]struct{}, len(links))
	variants := make([]catalog.Variant, 0, len(links))
	for _, l := range links {
		href := strings.TrimSpace(l.Href)
		lower := strings.ToLower(href)
		if href == "" || !(strings.Contains(lower, "download") || strings.Contains(lower, ".mpd") || strings.Contains(lower, ".zip")) {
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}
		label := strings.Join(strings.Fields(l.Text), " ")
		if label == "" {
			label = DefaultVariantLabel
		}
		format := catalog.FormatPrimary
		if strings.Contains(lower, ".zip") {
			format = catalog.FormatArchive
		}
		variants = append(variants, catalog.Variant{Label: label, RetrievalRef: href, Format: format})
	}
	return variants, nil
}
