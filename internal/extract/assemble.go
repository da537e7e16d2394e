package extract

import (
	"strings"
	"unicode/utf8"
)

// PageText is one scraped page's sections plus the label used as its
// header in the assembled document.
type PageText struct {
	Label    string
	Sections *Sections
}

// Render flattens the sections into a labeled text block, skipping empty
// sections.
func (p PageText) Render() string {
	var b strings.Builder
	b.WriteString("=== ")
	b.WriteString(p.Label)
	b.WriteString(" ===\n")

	write := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	s := p.Sections
	write("Title", s.Title)
	write("Description", s.MetaDescription)
	write("OG Description", s.OGDescription)
	if len(s.Headings) > 0 {
		write("Headings", strings.Join(s.Headings, " | "))
	}
	write("Header", s.Header)
	write("Main", s.Main)
	write("About", s.About)
	write("Products/Services", s.Products)
	write("Contact", s.Contact)
	write("Footer", s.Footer)

	return b.String()
}

// Assemble concatenates per-page renderings in order and caps the result
// at MaxAssembledChars before it is handed to the synthesizer.
func Assemble(pages []PageText) string {
	var b strings.Builder
	for _, p := range pages {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Render())
		if b.Len() >= MaxAssembledChars {
			break
		}
	}
	text := b.String()
	if len(text) > MaxAssembledChars {
		text = truncateRuneSafe(text, MaxAssembledChars)
	}
	return text
}

// truncateRuneSafe cuts s to at most max bytes, backing off so no rune is
// split mid-sequence.
func truncateRuneSafe(s string, max int) string {
	for max > 0 && max < len(s) && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
