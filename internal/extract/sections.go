// Package extract parses raw HTML into named semantic text sections that
// feed the profile synthesizer.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// MaxAssembledChars caps the concatenated document handed to the
// synthesizer.
const MaxAssembledChars = 25000

// Sections holds the semantic text regions of one page. Heuristic and
// best-effort: a page with no recognizable contact block simply leaves
// Contact empty.
type Sections struct {
	Title           string
	MetaDescription string
	OGDescription   string
	Headings        []string
	Header          string
	Main            string
	About           string
	Products        string
	Contact         string
	Footer          string
}

// mainSelectors is the fallback chain for the primary content region.
var mainSelectors = []string{"main", "article", "[role=main]", "#content", ".content", "body"}

// Extract parses HTML and pulls out the page's semantic sections.
func Extract(html string) (*Sections, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	// Non-content elements would pollute every text selection below.
	doc.Find("script, style, iframe, noscript").Remove()

	s := &Sections{
		Title:           collapse(doc.Find("title").First().Text()),
		MetaDescription: metaContent(doc, `meta[name="description"]`),
		OGDescription:   metaContent(doc, `meta[property="og:description"]`),
		Header:          collapse(doc.Find("header").First().Text()),
		Footer:          collapse(doc.Find("footer").First().Text()),
	}

	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if h := collapse(sel.Text()); h != "" {
			s.Headings = append(s.Headings, h)
		}
	})

	for _, selector := range mainSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := collapse(sel.Text()); text != "" {
				s.Main = text
				break
			}
		}
	}

	s.About = classLike(doc, "about")
	s.Contact = classLike(doc, "contact")
	s.Products = firstNonEmpty(classLike(doc, "product"), classLike(doc, "service"))

	return s, nil
}

// classLike collects text from elements whose class or id contains the
// given substring. Best-effort content heuristic, not required to be
// complete.
func classLike(doc *goquery.Document, substr string) string {
	var parts []string
	doc.Find("[class],[id]").Each(func(_ int, sel *goquery.Selection) {
		if !attrLike(sel, substr) {
			return
		}
		// Skip elements nested inside an already-matched ancestor.
		nested := sel.Parents().FilterFunction(func(_ int, p *goquery.Selection) bool {
			return attrLike(p, substr)
		})
		if nested.Length() > 0 {
			return
		}
		if text := collapse(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

// attrLike reports whether the selection's class or id contains substr,
// case-insensitively.
func attrLike(sel *goquery.Selection, substr string) bool {
	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	return strings.Contains(strings.ToLower(class), substr) ||
		strings.Contains(strings.ToLower(id), substr)
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return collapse(content)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// collapse trims and squashes all runs of whitespace to single spaces.
func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
