package synth

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sells-group/site-analyzer/internal/crawlerr"
	"github.com/sells-group/site-analyzer/internal/model"
	"github.com/sells-group/site-analyzer/internal/resilience"
	"github.com/sells-group/site-analyzer/pkg/anthropic"
)

// Claude implements Synthesizer on top of the Anthropic messages API.
type Claude struct {
	client anthropic.Client
	model  string
	retry  resilience.RetryConfig
}

// NewClaude creates a Claude synthesizer. An empty model selects
// DefaultModel.
func NewClaude(client anthropic.Client, modelID string) *Claude {
	if modelID == "" {
		modelID = DefaultModel
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "synthesize")
	return &Claude{client: client, model: modelID, retry: retry}
}

// Summarize turns concatenated section text into a fresh profile.
func (c *Claude) Summarize(ctx context.Context, text string) (*model.StructuredProfile, error) {
	return c.complete(ctx, summarizePrompt(text), "summarize")
}

// MergeInto folds new text into an existing profile. The no-data-loss
// invariant is enforced on the model's output, not just requested of it.
func (c *Claude) MergeInto(ctx context.Context, existing *model.StructuredProfile, text string) (*model.StructuredProfile, error) {
	if existing == nil {
		return c.Summarize(ctx, text)
	}
	merged, err := c.complete(ctx, mergePrompt(existing, text), "merge")
	if err != nil {
		return nil, err
	}
	return EnforceSuperset(existing, merged), nil
}

func (c *Claude) complete(ctx context.Context, prompt, phase string) (*model.StructuredProfile, error) {
	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: maxOutputTokens,
			System:    systemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: prompt},
			},
		})
	})
	if err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindSynthesisFailed, err, "model call")
	}
	resp.Usage.LogCost(c.model, phase)

	profile, err := ParseProfile(resp.Text())
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// ParseProfile decodes the model's reply into a StructuredProfile,
// tolerating a fenced code block around the JSON. Missing scalar fields
// are normalized to the NotFound sentinel so the orchestrator never sees
// an absent field.
func ParseProfile(reply string) (*model.StructuredProfile, error) {
	raw := stripFences(reply)

	var profile model.StructuredProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindSynthesisFailed, err, "parse model output")
	}

	normalize(&profile)
	profile.Sanitize()
	return &profile, nil
}

// stripFences removes a surrounding markdown code fence, if present, and
// trims to the outermost JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	// Models sometimes preface the object with a sentence.
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if i := strings.LastIndex(s, "}"); i >= 0 {
		s = s[:i+1]
	}
	return strings.TrimSpace(s)
}

func normalize(p *model.StructuredProfile) {
	fill := func(s *string) {
		if strings.TrimSpace(*s) == "" {
			*s = model.NotFound
		}
	}
	fill(&p.BusinessName)
	fill(&p.BusinessDescription)
	fill(&p.TargetAudience)
	fill(&p.AdditionalInfo)

	if p.MainProducts == nil {
		p.MainProducts = []string{}
	}
	if p.MainServices == nil {
		p.MainServices = []string{}
	}
	if p.KeyFeatures == nil {
		p.KeyFeatures = []string{}
	}
	if p.UniqueSellingPoints == nil {
		p.UniqueSellingPoints = []string{}
	}
}
