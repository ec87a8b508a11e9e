package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

const healthTimeout = 2 * time.Second

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, logger *log.Logger, opts Options) {
	mw := RequestMetrics(logger)
	out := opts.Outbox

	e.GET("/quality-task-categories", listCategories(store), mw)
	e.POST("/quality-task-categories", createCategory(store, out), mw)
	e.PATCH("/quality-task-categories/:id", updateCategory(store, out), mw)
	e.DELETE("/quality-task-categories/:id", deleteCategory(store, out), mw)

	e.GET("/quality-tasks", listTasks(store), mw)
	e.GET("/quality-tasks/:id", getTask(store), mw)
	e.POST("/quality-tasks", createTask(store, opts.Deduper, out, logger), mw)
	e.PATCH("/quality-tasks/:id", updateTask(store, out), mw)
	e.DELETE("/quality-tasks/:id", deleteTask(store, out), mw)
	e.POST("/quality-task-positions", updatePositions(store, out), mw)

	if opts.Broker != nil {
		e.GET("/quality-board/stream", streamEvents(opts.Broker, logger))
	}
	e.GET("/healthz", healthz(store))
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable").SetInternal(err)
		}
		return respond(c, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("invalid id", domain.FieldError{Field: "id", Error: "must be a positive integer"})
	}
	return id, nil
}

// bind decodes and validates the request body into out.
func bind(c echo.Context, out any) error {
	m := metricsFrom(c)
	start := time.Now()
	if err := decodeJSON(c.Request().Body, out); err != nil {
		m.SetErrorStage("decode")
		return errInvalidBody
	}
	m.ObserveDecode(time.Since(start))
	if err := c.Validate(out); err != nil {
		m.SetErrorStage("validate")
		return err
	}
	return nil
}

// stored runs a storage call and records its duration.
func stored(c echo.Context, fn func(ctx context.Context) error) error {
	m := metricsFrom(c)
	start := time.Now()
	err := fn(c.Request().Context())
	m.ObserveStorage(time.Since(start))
	if err != nil {
		m.SetErrorStage("storage")
	}
	return err
}

func listCategories(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var cats []domain.Category
		err := stored(c, func(ctx context.Context) (err error) {
			cats, err = store.ListCategories(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if cats == nil {
			cats = []domain.Category{}
		}
		metricsFrom(c).SetItems(len(cats))
		return respond(c, http.StatusOK, cats)
	}
}

func createCategory(store Storage, out *EventOutbox) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.Category
		if err := bind(c, &in); err != nil {
			return err
		}
		in.ID = 0
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			return domain.NewValidationError("validation failed", domain.FieldError{Field: "name", Error: "is required"})
		}

		var created domain.Category
		err := stored(c, func(ctx context.Context) (err error) {
			created, err = store.CreateCategory(ctx, in)
			return err
		})
		if err != nil {
			return err
		}
		out.Dispatch(domain.NewCategoryEvent(domain.CategoryCreated, created.ID))
		metricsFrom(c).SetItems(1)
		return respond(c, http.StatusCreated, created)
	}
}

func updateCategory(store Storage, out *EventOutbox) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var patch domain.CategoryPatch
		if err := bind(c, &patch); err != nil {
			return err
		}
		if patch.Empty() {
			return errEmptyPatch
		}

		var updated domain.Category
		err = stored(c, func(ctx context.Context) (err error) {
			updated, err = store.UpdateCategory(ctx, id, patch)
			return err
		})
		if err != nil {
			return err
		}
		out.Dispatch(domain.NewCategoryEvent(domain.CategoryUpdated, id))
		metricsFrom(c).SetItems(1)
		return respond(c, http.StatusOK, updated)
	}
}

func deleteCategory(store Storage, out *EventOutbox) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var removed int
		err = stored(c, func(ctx context.Context) (err error) {
			removed, err = store.DeleteCategory(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
		out.Dispatch(domain.NewCategoryEvent(domain.CategoryDeleted, id))
		metricsFrom(c).SetItems(removed)
		return respond(c, http.StatusOK, deleteResponse{ID: id, DeletedTasks: &removed})
	}
}

func listTasks(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tasks []domain.Task
		err := stored(c, func(ctx context.Context) (err error) {
			tasks, err = store.ListTasks(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		metricsFrom(c).SetItems(len(tasks))
		return respond(c, http.StatusOK, tasks)
	}
}

func getTask(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var task domain.Task
		err = stored(c, func(ctx context.Context) (err error) {
			task, err = store.GetTask(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
		metricsFrom(c).SetItems(1)
		return respond(c, http.StatusOK, task)
	}
}

func createTask(store Storage, deduper Deduper, out *EventOutbox, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.Task
		if err := bind(c, &in); err != nil {
			return err
		}
		in.ID = 0
		in.Title = strings.TrimSpace(in.Title)
		if in.Title == "" {
			return domain.NewValidationError("validation failed", domain.FieldError{Field: "title", Error: "is required"})
		}
		if in.EffectiveCategoryID() == 0 {
			return domain.NewValidationError("validation failed", domain.FieldError{Field: "category_id", Error: "is required"})
		}

		ctx := c.Request().Context()
		key := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
		recorded := false
		if deduper != nil && key != "" {
			added, err := deduper.Add(ctx, key)
			switch {
			case err != nil:
				logger.WithError(err).WithField("key", key).Warn("idempotency check failed; processing request")
			case !added:
				metricsFrom(c).SetErrorStage("duplicate")
				return errDuplicateRequest
			default:
				recorded = true
			}
		}

		var created domain.Task
		err := stored(c, func(ctx context.Context) (err error) {
			created, err = store.CreateTask(ctx, in)
			return err
		})
		if err != nil {
			if recorded {
				if rerr := deduper.Remove(context.WithoutCancel(ctx), key); rerr != nil {
					logger.WithError(rerr).WithField("key", key).Error("idempotency rollback failed")
				}
			}
			return err
		}
		out.Dispatch(domain.NewTaskEvent(domain.TaskCreated, created.ID, created.CategoryID))
		metricsFrom(c).SetItems(1)
		return respond(c, http.StatusCreated, created)
	}
}

func updateTask(store Storage, out *EventOutbox) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var patch domain.TaskPatch
		if err := bind(c, &patch); err != nil {
			return err
		}
		if patch.Empty() {
			return errEmptyPatch
		}
		if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
			return domain.NewValidationError("validation failed", domain.FieldError{Field: "title", Error: "is required"})
		}

		var updated domain.Task
		err = stored(c, func(ctx context.Context) (err error) {
			updated, err = store.UpdateTask(ctx, id, patch)
			return err
		})
		if err != nil {
			return err
		}
		typ := domain.TaskUpdated
		if patch.CategoryID != nil {
			typ = domain.TaskMoved
		}
		out.Dispatch(domain.NewTaskEvent(typ, id, updated.CategoryID))
		metricsFrom(c).SetItems(1)
		return respond(c, http.StatusOK, updated)
	}
}

func deleteTask(store Storage, out *EventOutbox) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var task domain.Task
		err = stored(c, func(ctx context.Context) error {
			var err error
			if task, err = store.GetTask(ctx, id); err != nil {
				return err
			}
			return store.DeleteTask(ctx, id)
		})
		if err != nil {
			return err
		}
		out.Dispatch(domain.NewTaskEvent(domain.TaskDeleted, id, task.CategoryID))
		metricsFrom(c).SetItems(1)
		return respond(c, http.StatusOK, deleteResponse{ID: id})
	}
}

func updatePositions(store Storage, out *EventOutbox) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		var updates []domain.PositionUpdate
		start := time.Now()
		if err := decodeJSON(c.Request().Body, &updates); err != nil {
			m.SetErrorStage("decode")
			return errInvalidBody
		}
		m.ObserveDecode(time.Since(start))
		if len(updates) == 0 {
			m.SetErrorStage("validate")
			return domain.NewValidationError("no positions given")
		}
		seen := make(map[int64]struct{}, len(updates))
		for i := range updates {
			if err := c.Validate(&updates[i]); err != nil {
				m.SetErrorStage("validate")
				return err
			}
			if _, dup := seen[updates[i].ID]; dup {
				m.SetErrorStage("validate")
				return domain.NewValidationError("validation failed", domain.FieldError{
					Field: "id",
					Error: "task " + strconv.FormatInt(updates[i].ID, 10) + " appears more than once",
				})
			}
			seen[updates[i].ID] = struct{}{}
		}

		err := stored(c, func(ctx context.Context) error {
			return store.UpdatePositions(ctx, updates)
		})
		if err != nil {
			return err
		}
		out.Dispatch(domain.NewTaskEvent(domain.TasksReordered, updates[0].ID, 0))
		m.SetItems(len(updates))
		return respond(c, http.StatusOK, positionsResponse{Updated: len(updates)})
	}
}
