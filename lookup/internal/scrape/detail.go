package scrape

import (
	"strings"

	"golang.org/x/net/html"
)

// DetailPage extracts all sighting records from a plate detail page.
//
// The page lays records out as parallel runs of styled font elements in
// document order: 18pt/#555 fonts carry dates, red fonts carry locations
// (minus modal close buttons), 14pt fonts carry descriptions, and 9pt
// "created:"/"added:" stamps carry times with the vehicle text in the
// structurally preceding table. The runs are zipped by date index; a run
// that comes up short contributes empty fields rather than shifting later
// records.
func DetailPage(page string) []Sighting {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var dates, locations, descriptions, vehicles, times []string

	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "font" {
			return
		}
		style := attrVal(n, "style")
		color := attrVal(n, "color")

		switch {
		case strings.Contains(style, "font-size:18pt") && color == "#555":
			dates = append(dates, textContent(n))

		case color == "red":
			if t := textContent(n); t != "" && t != "×" {
				locations = append(locations, t)
			}

		case strings.Contains(style, "font-size:14pt"):
			t := textContent(n)
			if t != "" && t != "UNCONFIRMED" && !strings.Contains(strings.ToLower(t), "upcoming action") {
				descriptions = append(descriptions, t)
			}

		case strings.Contains(style, "font-size:9pt"):
			t := textContent(n)
			if !strings.HasPrefix(t, "created:") && !strings.HasPrefix(t, "added:") {
				return
			}
			// Only the element's own leading text: child elements carry
			// unrelated chrome like "2 records [update]".
			direct := directText(n)
			switch {
			case strings.HasPrefix(direct, "created:"):
				times = append(times, strings.TrimSpace(direct[len("created:"):]))
			case strings.HasPrefix(direct, "added:"):
				times = append(times, strings.TrimSpace(direct[len("added:"):]))
			default:
				times = append(times, "")
			}
			vehicles = append(vehicles, vehicleBefore(n))
		}
	})

	var sightings []Sighting
	for i, date := range dates {
		sightings = append(sightings, Sighting{
			Date:        date,
			Location:    at(locations, i),
			Vehicle:     at(vehicles, i),
			Description: at(descriptions, i),
			Time:        at(times, i),
		})
	}
	return sightings
}

// vehicleBefore finds the sighting's vehicle text: the previous sibling
// cellpadding=0 table of the cellpadding=0 table enclosing the timestamp.
func vehicleBefore(n *html.Node) string {
	enclosing := ancestorTable(n)
	if enclosing == nil {
		return ""
	}
	for prev := enclosing.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if isZeroPadTable(prev) {
			return textContent(prev)
		}
	}
	return ""
}

func ancestorTable(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if isZeroPadTable(p) {
			return p
		}
	}
	return nil
}

func isZeroPadTable(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "table" && attrVal(n, "cellpadding") == "0"
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent gathers all descendant text, each segment trimmed, joined
// without separators.
func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(c.Data))
		}
	})
	return b.String()
}

// directText returns the element's first immediate text child, trimmed.
func directText(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			return strings.TrimSpace(c.Data)
		}
	}
	return ""
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
