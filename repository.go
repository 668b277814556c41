package planloop

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// PlanRepository provides plan templates to the engine. Plans are read-only
// at runtime; there is no update path.
type PlanRepository interface {
	GetPlan(ctx context.Context, planID string) (*Plan, error)
}

// MemoryPlanRepository is a PlanRepository backed by a map. Plans are
// validated when registered so the engine never sees a broken template.
type MemoryPlanRepository struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

func NewMemoryPlanRepository(plans ...*Plan) (*MemoryPlanRepository, error) {
	repo := &MemoryPlanRepository{plans: map[string]*Plan{}}
	for _, p := range plans {
		if err := repo.Register(p); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (x *MemoryPlanRepository) Register(plan *Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.plans[plan.ID]; ok {
		return goerr.Wrap(ErrInvalidPlan, "plan id already registered", goerr.V("plan_id", plan.ID))
	}
	x.plans[plan.ID] = plan
	return nil
}

func (x *MemoryPlanRepository) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	plan, ok := x.plans[planID]
	if !ok {
		return nil, goerr.Wrap(ErrPlanNotFound, "no such plan", goerr.V("plan_id", planID))
	}
	return plan, nil
}
