package customization

import (
	"context"
	"testing"

	"github.com/msourial/platefull/pkg/db/models"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

type stubMenu struct {
	item *models.MenuItem
}

func (s stubMenu) GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	if s.item == nil || s.item.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
	}
	return s.item, nil
}

type stubItems struct {
	items   map[uint]*models.OrderItem
	updates int
}

func (s *stubItems) GetItem(ctx context.Context, id uint) (*models.OrderItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	cp := *item
	cp.Customizations = models.Customizations{}
	for k, v := range item.Customizations {
		cp.Customizations[k] = v
	}
	return &cp, nil
}

func (s *stubItems) UpdateCustomization(ctx context.Context, id uint, option, choice string) (*models.OrderItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	s.updates++
	if item.Customizations == nil {
		item.Customizations = models.Customizations{}
	}
	item.Customizations[option] = choice
	return s.GetItem(ctx, id)
}

func newTestFlow(t *testing.T) (*Flow, *stubItems) {
	t.Helper()
	menu := stubMenu{item: &models.MenuItem{
		ID:   3,
		Name: "Chicken Shawarma Pita",
		Options: models.CustomizationOptions{
			{Name: "spice", Prompt: "How spicy?", Choices: []string{"mild", "medium", "hot"}},
			{Name: "bread", Choices: []string{"white", "whole wheat"}},
		},
	}}
	items := &stubItems{items: map[uint]*models.OrderItem{
		10: {ID: 10, MenuItemID: 3, Name: "Chicken Shawarma Pita"},
	}}
	flow, err := NewFlow(menu, items)
	if err != nil {
		t.Fatalf("new flow: %v", err)
	}
	return flow, items
}

func TestNextPresentsOneOptionAtATime(t *testing.T) {
	flow, _ := newTestFlow(t)

	step, err := flow.Next(context.Background(), 10)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if step.Done || step.Prompt == nil {
		t.Fatalf("expected a prompt, got %+v", step)
	}
	if step.Prompt.Option.Name != "spice" || step.Prompt.Remaining != 2 {
		t.Fatalf("unexpected prompt %+v", step.Prompt)
	}
	if step.Prompt.Question() != "How spicy?" {
		t.Fatalf("unexpected question %q", step.Prompt.Question())
	}
}

func TestApplyAdvancesUntilDone(t *testing.T) {
	flow, items := newTestFlow(t)
	ctx := context.Background()

	step, err := flow.Apply(ctx, 10, "spice", "HOT")
	if err != nil {
		t.Fatalf("apply spice: %v", err)
	}
	if step.Prompt == nil || step.Prompt.Option.Name != "bread" {
		t.Fatalf("expected bread prompt, got %+v", step)
	}
	if step.Prompt.Question() != "Which bread would you like for your Chicken Shawarma Pita?" {
		t.Fatalf("unexpected fallback question %q", step.Prompt.Question())
	}

	step, err = flow.Apply(ctx, 10, "bread", "whole wheat")
	if err != nil {
		t.Fatalf("apply bread: %v", err)
	}
	if !step.Done {
		t.Fatalf("expected done, got %+v", step)
	}
	got := items.items[10].Customizations
	if got["spice"] != "hot" || got["bread"] != "whole wheat" {
		t.Fatalf("unexpected customizations %v", got)
	}
}

func TestApplyRejectsUnknownChoice(t *testing.T) {
	flow, items := newTestFlow(t)

	_, err := flow.Apply(context.Background(), 10, "spice", "volcanic")
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	prompt, ok := pkgerrors.As(err).Details().(Prompt)
	if !ok || prompt.Option.Name != "spice" {
		t.Fatalf("expected re-prompt details for spice, got %#v", pkgerrors.As(err).Details())
	}
	if items.updates != 0 {
		t.Fatalf("line should be untouched")
	}

	_, err = flow.Apply(context.Background(), 10, "topping", "olives")
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown option, got %v", err)
	}
}

func TestApplyMissingLine(t *testing.T) {
	flow, _ := newTestFlow(t)

	_, err := flow.Apply(context.Background(), 99, "spice", "hot")
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNextResumesAfterPartialAnswers(t *testing.T) {
	flow, items := newTestFlow(t)
	items.items[10].Customizations = models.Customizations{"spice": "mild"}

	step, err := flow.Next(context.Background(), 10)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if step.Prompt == nil || step.Prompt.Option.Name != "bread" || step.Prompt.Remaining != 1 {
		t.Fatalf("expected to resume at bread, got %+v", step.Prompt)
	}
}

func TestItemWithoutOptionsIsDone(t *testing.T) {
	menu := stubMenu{item: &models.MenuItem{ID: 4, Name: "Fries"}}
	items := &stubItems{items: map[uint]*models.OrderItem{1: {ID: 1, MenuItemID: 4, Name: "Fries"}}}
	flow, err := NewFlow(menu, items)
	if err != nil {
		t.Fatal(err)
	}
	step, err := flow.Next(context.Background(), 1)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !step.Done {
		t.Fatalf("expected done")
	}
}
