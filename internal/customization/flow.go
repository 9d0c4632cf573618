// Package customization walks a cart line through its declared options one
// question at a time.
package customization

import (
	"context"
	"fmt"
	"strings"

	"github.com/msourial/platefull/pkg/db/models"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// MenuReader loads the catalog entry that declares the options.
type MenuReader interface {
	GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error)
}

// ItemStore reads and updates cart lines.
type ItemStore interface {
	GetItem(ctx context.Context, orderItemID uint) (*models.OrderItem, error)
	UpdateCustomization(ctx context.Context, orderItemID uint, option, choice string) (*models.OrderItem, error)
}

// Prompt is the single question to put to the user next.
type Prompt struct {
	OrderItemID uint
	ItemName    string
	Option      models.CustomizationOption
	// Remaining counts the unanswered options including this one.
	Remaining int
}

// Question renders the option prompt, falling back to a generic one.
func (p Prompt) Question() string {
	if strings.TrimSpace(p.Option.Prompt) != "" {
		return p.Option.Prompt
	}
	return fmt.Sprintf("Which %s would you like for your %s?", p.Option.Name, p.ItemName)
}

// Step is the outcome of Next or Apply. Exactly one of Prompt or Done is set.
type Step struct {
	Item   *models.OrderItem
	Prompt *Prompt
	Done   bool
}

// Flow drives customization of cart lines.
type Flow struct {
	menu  MenuReader
	items ItemStore
}

// NewFlow builds a customization flow.
func NewFlow(menu MenuReader, items ItemStore) (*Flow, error) {
	if menu == nil {
		return nil, fmt.Errorf("menu reader required")
	}
	if items == nil {
		return nil, fmt.Errorf("item store required")
	}
	return &Flow{menu: menu, items: items}, nil
}

// Remaining returns the declared options that have no answer yet, in declaration order.
func Remaining(options models.CustomizationOptions, answered models.Customizations) []models.CustomizationOption {
	out := make([]models.CustomizationOption, 0, len(options))
	for _, opt := range options {
		if _, ok := answered[opt.Name]; ok {
			continue
		}
		out = append(out, opt)
	}
	return out
}

// Next presents the first unanswered option of the line, or reports Done.
// It reads everything from storage so any later turn can resume.
func (f *Flow) Next(ctx context.Context, orderItemID uint) (*Step, error) {
	item, menuItem, err := f.load(ctx, orderItemID)
	if err != nil {
		return nil, err
	}
	return step(item, menuItem), nil
}

// Apply validates and stores one answer, then computes the next step.
// An unknown option or choice returns CodeValidation and leaves the line unchanged.
func (f *Flow) Apply(ctx context.Context, orderItemID uint, option, choice string) (*Step, error) {
	item, menuItem, err := f.load(ctx, orderItemID)
	if err != nil {
		return nil, err
	}
	opt, ok := menuItem.Options.Find(option)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s has no %q option", menuItem.Name, option))
	}
	canonical, ok := matchChoice(opt, choice)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("%q is not a %s choice; pick one of %s", choice, opt.Name, strings.Join(opt.Choices, ", "))).
			WithDetails(Prompt{OrderItemID: item.ID, ItemName: item.Name, Option: opt})
	}

	updated, err := f.items.UpdateCustomization(ctx, orderItemID, opt.Name, canonical)
	if err != nil {
		return nil, err
	}
	return step(updated, menuItem), nil
}

func (f *Flow) load(ctx context.Context, orderItemID uint) (*models.OrderItem, *models.MenuItem, error) {
	item, err := f.items.GetItem(ctx, orderItemID)
	if err != nil {
		return nil, nil, err
	}
	menuItem, err := f.menu.GetMenuItem(ctx, item.MenuItemID)
	if err != nil {
		return nil, nil, err
	}
	return item, menuItem, nil
}

func step(item *models.OrderItem, menuItem *models.MenuItem) *Step {
	remaining := Remaining(menuItem.Options, item.Customizations)
	if len(remaining) == 0 {
		return &Step{Item: item, Done: true}
	}
	return &Step{
		Item: item,
		Prompt: &Prompt{
			OrderItemID: item.ID,
			ItemName:    item.Name,
			Option:      remaining[0],
			Remaining:   len(remaining),
		},
	}
}

func matchChoice(opt models.CustomizationOption, choice string) (string, bool) {
	choice = strings.TrimSpace(choice)
	if opt.HasChoice(choice) {
		return choice, true
	}
	for _, c := range opt.Choices {
		if strings.EqualFold(c, choice) {
			return c, true
		}
	}
	return "", false
}
