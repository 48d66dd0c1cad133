package services

import (
	"context"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// GoalView adds the derived progress fields to a goal.
type GoalView struct {
	core.Goal
	Progress int  `json:"progress"`
	Achieved bool `json:"achieved"`
}

func viewOf(g core.Goal) GoalView {
	return GoalView{Goal: g, Progress: g.Progress(), Achieved: g.Achieved()}
}

type GoalService struct {
	store *storage.Store
}

func NewGoalService(store *storage.Store) *GoalService {
	return &GoalService{store: store}
}

func (s *GoalService) Create(ctx context.Context, userID int64, g core.Goal) (GoalView, error) {
	g.UserID = userID
	g.Name = strings.TrimSpace(g.Name)
	if err := g.Validate(); err != nil {
		return GoalView{}, err
	}
	created, err := s.store.CreateGoal(ctx, g)
	if err != nil {
		return GoalView{}, err
	}
	return viewOf(created), nil
}

func (s *GoalService) Get(ctx context.Context, userID, id int64) (GoalView, error) {
	g, err := s.store.GetGoal(ctx, userID, id)
	if err != nil {
		return GoalView{}, err
	}
	return viewOf(g), nil
}

func (s *GoalService) List(ctx context.Context, userID int64) ([]GoalView, error) {
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]GoalView, len(goals))
	for i, g := range goals {
		out[i] = viewOf(g)
	}
	return out, nil
}

func (s *GoalService) Update(ctx context.Context, userID, id int64, g core.Goal) (GoalView, error) {
	g.ID, g.UserID = id, userID
	g.Name = strings.TrimSpace(g.Name)
	if err := g.Validate(); err != nil {
		return GoalView{}, err
	}
	updated, err := s.store.UpdateGoal(ctx, g)
	if err != nil {
		return GoalView{}, err
	}
	return viewOf(updated), nil
}

func (s *GoalService) Delete(ctx context.Context, userID, id int64) error {
	return s.store.DeleteGoal(ctx, userID, id)
}

// Contribute adds amount to the goal; a negative amount withdraws but the
// saved amount never drops below zero.
func (s *GoalService) Contribute(ctx context.Context, userID, id int64, amount core.Money) (GoalView, error) {
	g, err := s.store.GetGoal(ctx, userID, id)
	if err != nil {
		return GoalView{}, err
	}
	if err := g.Contribute(amount); err != nil {
		return GoalView{}, err
	}
	updated, err := s.store.UpdateGoal(ctx, g)
	if err != nil {
		return GoalView{}, err
	}
	return viewOf(updated), nil
}
