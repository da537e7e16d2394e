package model

import "strings"

// NotFound is the sentinel the synthesizer uses for scalar facts it could
// not establish. Merge logic treats it as "no new evidence".
const NotFound = "Not found"

// ContactInfo holds the contact details extracted for a business.
type ContactInfo struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// StructuredProfile is the synthesized business profile built from scraped
// website content. List fields only ever grow across merges; scalar fields
// are overwritten only when new evidence is present.
type StructuredProfile struct {
	BusinessName        string      `json:"businessName"`
	BusinessDescription string      `json:"businessDescription"`
	MainProducts        []string    `json:"mainProducts"`
	MainServices        []string    `json:"mainServices"`
	KeyFeatures         []string    `json:"keyFeatures"`
	TargetAudience      string      `json:"targetAudience"`
	UniqueSellingPoints []string    `json:"uniqueSellingPoints"`
	ContactInfo         ContactInfo `json:"contactInfo"`
	BusinessHours       string      `json:"businessHours,omitempty"`
	PricingInfo         string      `json:"pricingInfo,omitempty"`
	AdditionalInfo      string      `json:"additionalInfo"`
}

// Sanitize deduplicates every list field in place, preserving first-seen
// order and comparing values case-insensitively after trimming.
func (p *StructuredProfile) Sanitize() {
	p.MainProducts = dedupe(p.MainProducts)
	p.MainServices = dedupe(p.MainServices)
	p.KeyFeatures = dedupe(p.KeyFeatures)
	p.UniqueSellingPoints = dedupe(p.UniqueSellingPoints)
}

// Clone returns a deep copy of the profile.
func (p *StructuredProfile) Clone() *StructuredProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.MainProducts = append([]string(nil), p.MainProducts...)
	cp.MainServices = append([]string(nil), p.MainServices...)
	cp.KeyFeatures = append([]string(nil), p.KeyFeatures...)
	cp.UniqueSellingPoints = append([]string(nil), p.UniqueSellingPoints...)
	return &cp
}

// HasValue reports whether a scalar field value carries real evidence, i.e.
// it is neither empty nor the NotFound sentinel.
func HasValue(s string) bool {
	t := strings.TrimSpace(s)
	return t != "" && !strings.EqualFold(t, NotFound)
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
