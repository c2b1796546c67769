package render

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Stats counts document features reported in transform metadata.
type Stats struct {
	Words      int `json:"wordCount"`
	Headings   int `json:"headingCount"`
	Links      int `json:"linkCount"`
	Images     int `json:"imageCount"`
	CodeBlocks int `json:"codeBlockCount"`
}

// Analyze counts features line by line in markdown source. Links are counted
// by "](" so images count as links too. Fences are counted in pairs.
func Analyze(source string) Stats {
	var stats Stats
	fences := 0
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			stats.Headings++
		}
		if strings.HasPrefix(trimmed, "```") {
			fences++
		}
		stats.Words += len(strings.Fields(trimmed))
		stats.Links += strings.Count(trimmed, "](")
		stats.Images += strings.Count(trimmed, "![")
	}
	stats.CodeBlocks = fences / 2
	return stats
}

// AnalyzeHTML replaces the structural counts with counts taken from rendered
// HTML, keeping the source word count. If the HTML cannot be parsed the
// source counts are returned unchanged.
func (s Stats) AnalyzeHTML(document string) Stats {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return s
	}
	s.Headings = doc.Find("h1, h2, h3, h4, h5, h6").Length()
	s.Links = doc.Find("a[href]").Length()
	s.Images = doc.Find("img").Length()
	s.CodeBlocks = doc.Find("pre").Length()
	return s
}

func (s Stats) apply(metadata map[string]any) {
	metadata["wordCount"] = s.Words
	metadata["headingCount"] = s.Headings
	metadata["linkCount"] = s.Links
	metadata["imageCount"] = s.Images
	metadata["codeBlockCount"] = s.CodeBlocks
}
