package synth

import (
	"encoding/json"
	"fmt"

	"github.com/sells-group/site-analyzer/internal/model"
)

// DefaultModel is the Claude model used for profile synthesis.
const DefaultModel = "claude-haiku-4-5-20251001"

const maxOutputTokens = 2048

// systemPrompt is the shared system instruction for profile synthesis.
const systemPrompt = `You are a business analyst extracting a structured profile of a business from the text of its website.

Rules:
- Answer ONLY based on information present in the provided website text
- Return a single valid JSON object and nothing else
- Every field must be present in the output
- Use the exact string "Not found" for any scalar fact the text does not establish
- Use empty JSON arrays for list fields with no entries; never use null
- Do not invent products, services, or contact details`

// profileShape documents the expected JSON to the model.
const profileShape = `{
  "businessName": string,
  "businessDescription": string,
  "mainProducts": [string],
  "mainServices": [string],
  "keyFeatures": [string],
  "targetAudience": string,
  "uniqueSellingPoints": [string],
  "contactInfo": {"email": string, "phone": string, "address": string},
  "businessHours": string,
  "pricingInfo": string,
  "additionalInfo": string
}`

// summarizePrompt builds the user message for a fresh synthesis.
func summarizePrompt(text string) string {
	return fmt.Sprintf(`Extract the business profile from the website text below.

Return JSON with this exact shape:
%s

Website text:
%s`, profileShape, text)
}

// mergePrompt builds the user message for merging new text into an
// existing profile. The superset requirement is stated to the model and
// additionally enforced in code afterwards.
func mergePrompt(existing *model.StructuredProfile, text string) string {
	existingJSON, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		existingJSON = []byte("{}")
	}

	return fmt.Sprintf(`Update the existing business profile below with any new information found in the new website text.

Requirements:
- Keep every element already present in the existing profile's list fields; only add to them
- Only change a scalar field when the new text provides clear evidence; otherwise keep the existing value
- Return JSON with this exact shape:
%s

Existing profile:
%s

New website text:
%s`, profileShape, existingJSON, text)
}
