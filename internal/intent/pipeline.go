package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// Pipeline resolves free text in strict priority order: commands, contextual
// short answers, dietary rules, then the external resolver.
type Pipeline struct {
	resolver Resolver
}

// NewPipeline builds a pipeline around the external resolver.
func NewPipeline(resolver Resolver) (*Pipeline, error) {
	if resolver == nil {
		return nil, fmt.Errorf("intent resolver required")
	}
	return &Pipeline{resolver: resolver}, nil
}

// Resolve classifies text. Resolver failures come back as CodeDependency.
func (p *Pipeline) Resolve(ctx context.Context, text string, convo Context) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return &Result{Intent: enums.IntentUnknown, Source: SourceCommand}, nil
	}
	if in, ok := Command(text); ok {
		return &Result{Intent: in, Source: SourceCommand}, nil
	}
	if pref, ok := matchContextual(text, convo.LastBotMessage); ok {
		return &Result{Intent: enums.IntentPreference, Source: SourceContextual, Preference: pref}, nil
	}
	if diet, ok := matchDiet(text); ok {
		return &Result{
			Intent:  enums.IntentDietaryRecommendation,
			Source:  SourceDietaryRule,
			Diet:    diet,
			Message: diet.Message,
		}, nil
	}

	if convo.Enrich != nil {
		if err := convo.Enrich(ctx, &convo); err != nil {
			return nil, err
		}
		convo.Enrich = nil
	}
	resp, err := p.resolver.Resolve(ctx, Request{Text: text, Context: convo})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve intent")
	}
	if resp == nil {
		return &Result{Intent: enums.IntentUnknown, Source: SourceResolver}, nil
	}
	return fromResponse(resp), nil
}

func fromResponse(resp *Response) *Result {
	in, err := enums.ParseIntent(strings.ToLower(strings.TrimSpace(resp.Intent)))
	if err != nil {
		in = enums.IntentUnknown
	}
	res := &Result{
		Intent:              in,
		Source:              SourceResolver,
		Item:                strings.TrimSpace(resp.Item),
		Quantity:            resp.Quantity,
		Category:            strings.TrimSpace(resp.Category),
		SpecialInstructions: strings.TrimSpace(resp.SpecialInstructions),
		Recommendations:     resp.Recommendations,
		FollowUpQuestions:   resp.FollowUpQuestions,
		Message:             resp.Message,
		Candidates:          dedupe(resp.Candidates),
	}

	if in == enums.IntentOrderItem && strings.EqualFold(res.Item, MultipleOptions) {
		candidates, ok := parseCandidates(res.SpecialInstructions)
		res.Item = ""
		res.SpecialInstructions = ""
		if !ok {
			res.Candidates = nil
			res.FallbackToMenu = true
			return res
		}
		res.Candidates = candidates
	}
	if len(res.Candidates) == 1 && res.Item == "" {
		res.Item = res.Candidates[0]
		res.Candidates = nil
	}
	return res
}

// parseCandidates accepts either ["a","b"] or [{"name":"a"},{"name":"b"}].
func parseCandidates(raw string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err == nil {
		names = dedupe(names)
		return names, len(names) > 0
	}
	var objects []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &objects); err != nil {
		return nil, false
	}
	for _, o := range objects {
		names = append(names, o.Name)
	}
	names = dedupe(names)
	return names, len(names) > 0
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
