package synth

import (
	"strings"

	"github.com/sells-group/site-analyzer/internal/model"
)

// EnforceSuperset guards the merge invariant: list fields never shrink and
// scalar fields are only overwritten on real evidence. The model is asked
// to behave this way, but its output is not trusted; any element it
// dropped is re-added (existing entries first, preserving their order) and
// any scalar it blanked is restored from the existing profile.
func EnforceSuperset(existing, merged *model.StructuredProfile) *model.StructuredProfile {
	if existing == nil {
		return merged
	}
	if merged == nil {
		return existing.Clone()
	}

	out := merged.Clone()

	out.MainProducts = supersetList(existing.MainProducts, merged.MainProducts)
	out.MainServices = supersetList(existing.MainServices, merged.MainServices)
	out.KeyFeatures = supersetList(existing.KeyFeatures, merged.KeyFeatures)
	out.UniqueSellingPoints = supersetList(existing.UniqueSellingPoints, merged.UniqueSellingPoints)

	out.BusinessName = keepScalar(existing.BusinessName, merged.BusinessName)
	out.BusinessDescription = keepScalar(existing.BusinessDescription, merged.BusinessDescription)
	out.TargetAudience = keepScalar(existing.TargetAudience, merged.TargetAudience)
	out.BusinessHours = keepScalar(existing.BusinessHours, merged.BusinessHours)
	out.PricingInfo = keepScalar(existing.PricingInfo, merged.PricingInfo)
	out.AdditionalInfo = keepScalar(existing.AdditionalInfo, merged.AdditionalInfo)

	out.ContactInfo.Email = keepScalar(existing.ContactInfo.Email, merged.ContactInfo.Email)
	out.ContactInfo.Phone = keepScalar(existing.ContactInfo.Phone, merged.ContactInfo.Phone)
	out.ContactInfo.Address = keepScalar(existing.ContactInfo.Address, merged.ContactInfo.Address)

	out.Sanitize()
	return out
}

// supersetList returns the union of prev and next with prev's elements
// first and value-level dedup (case-insensitive).
func supersetList(prev, next []string) []string {
	seen := make(map[string]bool, len(prev)+len(next))
	out := make([]string, 0, len(prev)+len(next))
	for _, lists := range [][]string{prev, next} {
		for _, v := range lists {
			key := strings.ToLower(strings.TrimSpace(v))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

// keepScalar prefers the new value when it carries evidence, otherwise
// retains the old one.
func keepScalar(prev, next string) string {
	if model.HasValue(next) {
		return next
	}
	return prev
}
