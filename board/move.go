package board

import (
	"context"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// Target is where a dragged card was released: over another card or over the
// empty space of a column. The zero value means nowhere.
type Target struct {
	TaskID     int64
	CategoryID int64
}

func OverTask(id int64) Target   { return Target{TaskID: id} }
func OverColumn(id int64) Target { return Target{CategoryID: id} }

func (t Target) IsZero() bool { return t.TaskID == 0 && t.CategoryID == 0 }

// resolve returns the category a drop over t lands in, or 0 when unknown.
func (c *Controller) resolve(t Target) int64 {
	if t.TaskID != 0 {
		over, ok := c.Task(t.TaskID)
		if !ok {
			return 0
		}
		return over.EffectiveCategoryID()
	}
	return t.CategoryID
}

// Reorder moves activeID to the slot of overID within their shared column and
// submits the renumbered column in one batch. Local state is updated before the
// request and is kept on failure until the next Refresh; only a successful
// batch triggers a refetch.
func (c *Controller) Reorder(ctx context.Context, activeID, overID int64) error {
	if activeID == overID {
		return nil
	}
	active, ok := c.Task(activeID)
	if !ok {
		return nil
	}
	categoryID := active.EffectiveCategoryID()
	defer c.locks.Lock(categoryID)()

	tasks := c.CategoryTasks(categoryID)
	oldIndex, newIndex := indexOf(tasks, activeID), indexOf(tasks, overID)
	if oldIndex < 0 || newIndex < 0 {
		return nil
	}
	defer c.markBusy(TaskKey(activeID))()

	updates := Renumber(ArrayMove(tasks, oldIndex, newIndex))
	c.applyPositions(updates)

	err := c.api.UpdatePositions(ctx, updates)
	if err != nil {
		c.notify.Error(describe("Failed to reorder tasks", err))
		return err
	}
	c.refetch(ctx)
	return nil
}

// Move re-parents activeID to the column under target. No position is sent;
// the server decides where the card lands.
func (c *Controller) Move(ctx context.Context, activeID int64, target Target) error {
	active, ok := c.Task(activeID)
	if !ok {
		return nil
	}
	dest := c.resolve(target)
	source := active.EffectiveCategoryID()
	if dest == 0 || dest == source {
		return nil
	}
	defer c.locks.Lock(source, dest)()
	defer c.markBusy(TaskKey(activeID))()

	c.applyMove(activeID, dest)

	_, err := c.api.UpdateTask(ctx, activeID, domain.TaskPatch{CategoryID: &dest})
	if err != nil {
		c.notify.Error(describe("Failed to move the task", err))
		return err
	}
	c.refetch(ctx)
	return nil
}

// Drop applies a finished drag gesture and reports what it did.
func (c *Controller) Drop(ctx context.Context, activeID int64, target Target) (Outcome, error) {
	if target.IsZero() || target.TaskID == activeID {
		return OutcomeNoop, nil
	}
	active, ok := c.Task(activeID)
	if !ok {
		return OutcomeNoop, nil
	}
	dest := c.resolve(target)
	switch {
	case dest == 0:
		return OutcomeNoop, nil
	case dest == active.EffectiveCategoryID():
		if target.TaskID == 0 {
			return OutcomeNoop, nil
		}
		return OutcomeReorder, c.Reorder(ctx, activeID, target.TaskID)
	default:
		return OutcomeMove, c.Move(ctx, activeID, target)
	}
}
