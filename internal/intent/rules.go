package intent

import (
	"regexp"
	"strings"

	"github.com/msourial/platefull/pkg/enums"
)

var commands = map[string]enums.Intent{
	"/start":          enums.IntentRestart,
	"restart":         enums.IntentRestart,
	"start over":      enums.IntentRestart,
	"menu":            enums.IntentShowMenu,
	"/menu":           enums.IntentShowMenu,
	"show menu":       enums.IntentShowMenu,
	"cart":            enums.IntentViewOrder,
	"/cart":           enums.IntentViewOrder,
	"my order":        enums.IntentViewOrder,
	"view order":      enums.IntentViewOrder,
	"checkout":        enums.IntentCheckout,
	"/checkout":       enums.IntentCheckout,
	"/help":           enums.IntentHelp,
	"help":            enums.IntentHelp,
	"/recommend":      enums.IntentRecommendation,
	"recommendations": enums.IntentRecommendation,
}

var trailingPunct = regexp.MustCompile(`[\s.!?]+$`)

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = trailingPunct.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Command recognizes exact command keywords. Callers collecting free-form
// input (addresses, notes) use it so commands still win.
func Command(text string) (enums.Intent, bool) {
	in, ok := commands[normalize(text)]
	return in, ok
}

// DietRule is a canned recommendation for a common dietary request.
type DietRule struct {
	Name    string
	Tags    []string
	Message string
	pattern *regexp.Regexp
}

// DietRules are checked in order; each pattern tolerates common misspellings.
var DietRules = []DietRule{
	{
		Name:    "keto",
		Tags:    []string{"keto", "low-carb"},
		Message: "Going low-carb? These keep the carbs down without skimping on flavor:",
		pattern: regexp.MustCompile(`(?i)\b(keto|ketogenic|kito|keeto|low[\s-]?carbs?|lo[\s-]?carbs?|no[\s-]?carbs?|carb[\s-]?free)\b`),
	},
	{
		Name:    "vegan",
		Tags:    []string{"vegan"},
		Message: "Here are our fully plant-based dishes:",
		pattern: regexp.MustCompile(`(?i)\b(vegan|vegn|vegun|veagan|plant[\s-]?based)\b`),
	},
	{
		Name:    "vegetarian",
		Tags:    []string{"vegetarian", "vegan"},
		Message: "These vegetarian favorites are a great pick:",
		pattern: regexp.MustCompile(`(?i)\b(vegetarian|vegitarian|vegeterian|vegetarain|veggie|veggies|meatless|no[\s-]?meat)\b`),
	},
	{
		Name:    "gluten-free",
		Tags:    []string{"gluten-free"},
		Message: "These dishes are made without gluten:",
		pattern: regexp.MustCompile(`(?i)\b(gluten[\s-]?free|gluton[\s-]?free|glutten[\s-]?free|no[\s-]?gluten|celiac|coeliac)\b`),
	},
	{
		Name:    "halal",
		Tags:    []string{"halal"},
		Message: "All of these are prepared halal:",
		pattern: regexp.MustCompile(`(?i)\b(halal|halaal|hallal|halal[\s-]?certified)\b`),
	},
}

func matchDiet(text string) (*DietRule, bool) {
	for i := range DietRules {
		if DietRules[i].pattern.MatchString(text) {
			return &DietRules[i], true
		}
	}
	return nil, false
}

// closed questions the bot asks, matched against its previous message
var (
	askedSpice   = regexp.MustCompile(`(?i)(spicy|spice|mild|heat)[^?]*\?`)
	askedAllergy = regexp.MustCompile(`(?i)allerg[^?]*\?`)
	askedService = regexp.MustCompile(`(?i)(delivery|pick[\s-]?up)[^?]*\?`)

	answerSpicy  = regexp.MustCompile(`(?i)\b(spicy|spicey|hot|extra|fire|very)\b`)
	answerMedium = regexp.MustCompile(`(?i)\b(medium|some|little|bit)\b`)
	answerMild   = regexp.MustCompile(`(?i)\b(mild|not spicy|no spice|none|plain)\b`)
	answerNone   = regexp.MustCompile(`(?i)^(no|none|nope|nah|no allergies|nothing|n/a)$`)
	answerPickup = regexp.MustCompile(`(?i)\b(pick[\s-]?up|collect|take[\s-]?away|takeout)\b`)
	answerDeliv  = regexp.MustCompile(`(?i)\b(deliver|delivery|bring it|to my door)\b`)
)

const maxContextualWords = 3

// matchContextual interprets a short reply against the question the bot just asked.
func matchContextual(text, lastBotMessage string) (*Preference, bool) {
	clean := normalize(text)
	if clean == "" || len(strings.Fields(clean)) > maxContextualWords || lastBotMessage == "" {
		return nil, false
	}
	switch {
	case askedAllergy.MatchString(lastBotMessage):
		if answerNone.MatchString(clean) {
			return &Preference{Field: PreferenceAllergy, Value: "none"}, true
		}
		return &Preference{Field: PreferenceAllergy, Value: clean}, true
	case askedSpice.MatchString(lastBotMessage):
		switch {
		case answerMild.MatchString(clean):
			return &Preference{Field: PreferenceSpice, Value: "mild"}, true
		case answerMedium.MatchString(clean):
			return &Preference{Field: PreferenceSpice, Value: "medium"}, true
		case answerSpicy.MatchString(clean):
			return &Preference{Field: PreferenceSpice, Value: "spicy"}, true
		}
	case askedService.MatchString(lastBotMessage):
		switch {
		case answerPickup.MatchString(clean):
			return &Preference{Field: PreferenceService, Value: string(enums.DeliveryMethodPickup)}, true
		case answerDeliv.MatchString(clean):
			return &Preference{Field: PreferenceService, Value: string(enums.DeliveryMethodDelivery)}, true
		}
	}
	return nil, false
}
