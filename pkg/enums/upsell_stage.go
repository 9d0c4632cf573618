package enums

import "fmt"

// UpsellStage is one step of the post-add suggestion chain.
type UpsellStage string

const (
	UpsellStageSides    UpsellStage = "sides"
	UpsellStageDrinks   UpsellStage = "drinks"
	UpsellStageDesserts UpsellStage = "desserts"
)

var validUpsellStages = []UpsellStage{
	UpsellStageSides,
	UpsellStageDrinks,
	UpsellStageDesserts,
}

// String implements fmt.Stringer.
func (u UpsellStage) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UpsellStage.
func (u UpsellStage) IsValid() bool {
	for _, candidate := range validUpsellStages {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUpsellStage converts raw input into an UpsellStage.
func ParseUpsellStage(value string) (UpsellStage, error) {
	for _, candidate := range validUpsellStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upsell stage %q", value)
}
