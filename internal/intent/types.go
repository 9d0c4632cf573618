// Package intent classifies free-text turns. Cheap deterministic rules run
// first and the external resolver is only consulted when none match.
package intent

import (
	"context"

	"github.com/msourial/platefull/pkg/enums"
)

// MultipleOptions is the item value a resolver uses to signal that
// SpecialInstructions carries a JSON list of candidate items.
const MultipleOptions = "multiple_options"

// Source records which stage of the pipeline produced a result.
type Source string

const (
	SourceCommand     Source = "command"
	SourceContextual  Source = "contextual"
	SourceDietaryRule Source = "dietary_rule"
	SourceResolver    Source = "resolver"
)

// PreferenceField names a session preference learned from a short answer.
type PreferenceField string

const (
	PreferenceSpice   PreferenceField = "spice"
	PreferenceAllergy PreferenceField = "allergy"
	PreferenceService PreferenceField = "service"
)

// Preference is a value to persist into the session context.
type Preference struct {
	Field PreferenceField
	Value string
}

// Context is the conversation state shared with the resolver.
type Context struct {
	State          string            `json:"state"`
	LastBotMessage string            `json:"last_bot_message,omitempty"`
	CartItems      []string          `json:"cart_items,omitempty"`
	MenuItems      []string          `json:"menu_items,omitempty"`
	Preferences    map[string]string `json:"preferences,omitempty"`

	// Enrich fills CartItems and MenuItems. It runs only when the external
	// resolver is consulted.
	Enrich func(ctx context.Context, convo *Context) error `json:"-"`
}

// Recommendation is a resolver-proposed item with its reasons.
type Recommendation struct {
	Name    string   `json:"name"`
	Reasons []string `json:"reasons,omitempty"`
}

// Request is sent to the external resolver.
type Request struct {
	Text    string  `json:"text"`
	Context Context `json:"conversation_context"`
}

// Response is what the external resolver returns.
type Response struct {
	Intent              string           `json:"intent"`
	Item                string           `json:"item,omitempty"`
	Quantity            int              `json:"quantity,omitempty"`
	Category            string           `json:"category,omitempty"`
	SpecialInstructions string           `json:"special_instructions,omitempty"`
	Candidates          []string         `json:"candidates,omitempty"`
	Recommendations     []Recommendation `json:"recommendations,omitempty"`
	FollowUpQuestions   []string         `json:"follow_up_questions,omitempty"`
	Message             string           `json:"message,omitempty"`
}

// Resolver is the external natural-language classifier.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (*Response, error)
}

// Result is the pipeline's classification of one turn.
type Result struct {
	Intent              enums.Intent
	Source              Source
	Item                string
	Quantity            int
	Category            string
	SpecialInstructions string
	Recommendations     []Recommendation
	FollowUpQuestions   []string
	Message             string

	// Preference is set for contextual short answers.
	Preference *Preference
	// Diet is set when a dietary rule matched.
	Diet *DietRule
	// Candidates lists the items to choose from when the request was ambiguous.
	Candidates []string
	// FallbackToMenu means the resolver's candidate list could not be read.
	FallbackToMenu bool
}

// Ambiguous reports whether the user has to pick between several items.
func (r *Result) Ambiguous() bool {
	return r != nil && len(r.Candidates) > 1
}
