package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

const (
	categoryPartition = "category"
	taskPartition     = "task"
	counterPartition  = "counter"

	// entity group transactions accept at most 100 operations.
	maxTransactionSize = 100
	maxCounterRetries  = 16
	maxUpdateRetries   = 8
)

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
}

// TableStore keeps the board in Azure Table storage. Categories and id
// counters live in one table, tasks in another, each task sharing a single
// partition so reorders can be submitted as entity group transactions.
type TableStore struct {
	categories tableClient
	tasks      tableClient
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, categoriesTable, tasksTable string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{
		categories: svc.NewClient(categoriesTable),
		tasks:      svc.NewClient(tasksTable),
	}, nil
}

type categoryEntity struct {
	aztables.Entity
	Name     string `json:"Name"`
	Color    string `json:"Color"`
	Position *int   `json:"Position,omitempty"`
}

type taskEntity struct {
	aztables.Entity
	Title           string  `json:"Title"`
	Description     string  `json:"Description"`
	Status          string  `json:"Status"`
	Priority        string  `json:"Priority"`
	CategoryID      int64   `json:"CategoryId"`
	Position        int     `json:"Position"`
	DueDate         *string `json:"DueDate,omitempty"`
	StartDate       *string `json:"StartDate,omitempty"`
	EndDate         *string `json:"EndDate,omitempty"`
	AssignedMembers string  `json:"AssignedMembers"`
	Attachments     string  `json:"Attachments"`
	Comments        string  `json:"Comments"`
	Checklist       string  `json:"Checklist"`
}

type positionEntity struct {
	aztables.Entity
	Position int `json:"Position"`
}

type counterEntity struct {
	aztables.Entity
	Value int64 `json:"Value"`
}

func rowKey(id int64) string {
	return fmt.Sprintf("%019d", id)
}

func parseRowKey(rk string) (int64, error) {
	return strconv.ParseInt(rk, 10, 64)
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

// Ping lists a single category to check connectivity.
func (s *TableStore) Ping(ctx context.Context) error {
	top := int32(1)
	filter := "PartitionKey eq '" + categoryPartition + "'"
	pager := s.categories.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	if pager.More() {
		_, err := pager.NextPage(ctx)
		return err
	}
	return nil
}

// nextID allocates the next id for kind from an ETag-guarded counter entity.
func (s *TableStore) nextID(ctx context.Context, kind string) (int64, error) {
	for attempt := 0; attempt < maxCounterRetries; attempt++ {
		resp, err := s.categories.GetEntity(ctx, counterPartition, kind, nil)
		if hasStatus(err, http.StatusNotFound) {
			payload, mErr := sonic.Marshal(counterEntity{
				Entity: aztables.Entity{PartitionKey: counterPartition, RowKey: kind},
				Value:  1,
			})
			if mErr != nil {
				return 0, mErr
			}
			if _, err := s.categories.AddEntity(ctx, payload, nil); err != nil {
				if hasStatus(err, http.StatusConflict) {
					continue
				}
				return 0, err
			}
			return 1, nil
		}
		if err != nil {
			return 0, err
		}
		var ent counterEntity
		if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
			return 0, err
		}
		ent.Value++
		payload, err := sonic.Marshal(ent)
		if err != nil {
			return 0, err
		}
		etag := resp.ETag
		_, err = s.categories.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if hasStatus(err, http.StatusPreconditionFailed) {
			log.WithFields(log.Fields{"counter": kind, "attempt": attempt}).Debug("id counter conflict, retrying")
			continue
		}
		if err != nil {
			return 0, err
		}
		return ent.Value, nil
	}
	return 0, fmt.Errorf("allocate %s id: %w", kind, domain.ErrConcurrencyConflict)
}

func (s *TableStore) listEntities(ctx context.Context, client tableClient, partition string, each func([]byte) error) error {
	filter := "PartitionKey eq '" + partition + "'"
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := each(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *TableStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cats := []domain.Category{}
	err := s.listEntities(ctx, s.categories, categoryPartition, func(raw []byte) error {
		c, err := decodeCategoryEntity(raw)
		if err != nil {
			return err
		}
		cats = append(cats, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cats, func(i, j int) bool {
		pi, pj := cats[i].Position, cats[j].Position
		if (pi == nil) != (pj == nil) {
			return pi != nil
		}
		if pi != nil && *pi != *pj {
			return *pi < *pj
		}
		return cats[i].ID < cats[j].ID
	})
	return cats, nil
}

func (s *TableStore) getCategory(ctx context.Context, id int64) (domain.Category, azcore.ETag, error) {
	resp, err := s.categories.GetEntity(ctx, categoryPartition, rowKey(id), nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.Category{}, "", domain.ErrNotFound
		}
		return domain.Category{}, "", err
	}
	c, err := decodeCategoryEntity(resp.Value)
	return c, resp.ETag, err
}

func (s *TableStore) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	id, err := s.nextID(ctx, categoryPartition)
	if err != nil {
		return domain.Category{}, err
	}
	c.ID = id
	payload, err := sonic.Marshal(encodeCategoryEntity(c))
	if err != nil {
		return domain.Category{}, err
	}
	if _, err := s.categories.AddEntity(ctx, payload, nil); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

func (s *TableStore) UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		c, etag, err := s.getCategory(ctx, id)
		if err != nil {
			return domain.Category{}, err
		}
		patch.Apply(&c)
		payload, err := sonic.Marshal(encodeCategoryEntity(c))
		if err != nil {
			return domain.Category{}, err
		}
		_, err = s.categories.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if hasStatus(err, http.StatusPreconditionFailed) {
			continue
		}
		if err != nil {
			return domain.Category{}, err
		}
		return c, nil
	}
	return domain.Category{}, domain.ErrConcurrencyConflict
}

// DeleteCategory deletes the tasks of the category in group transactions,
// then the category, then sweeps tasks written into it in the meantime. A
// task write that lands after the sweep finds the category gone and removes
// itself (see dropIfOrphaned).
func (s *TableStore) DeleteCategory(ctx context.Context, id int64) (int, error) {
	if _, _, err := s.getCategory(ctx, id); err != nil {
		return 0, err
	}
	removed, err := s.sweepTasks(ctx, id)
	if err != nil {
		return removed, err
	}
	if _, err := s.categories.DeleteEntity(ctx, categoryPartition, rowKey(id), nil); err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return removed, domain.ErrNotFound
		}
		return removed, err
	}
	late, err := s.sweepTasks(ctx, id)
	if late > 0 {
		log.WithFields(log.Fields{"category": id, "tasks": late}).Info("removed tasks written during category delete")
	}
	return removed + late, err
}

func (s *TableStore) sweepTasks(ctx context.Context, categoryID int64) (int, error) {
	tasks, err := s.tasksOf(ctx, categoryID)
	if err != nil || len(tasks) == 0 {
		return 0, err
	}
	actions := make([]aztables.TransactionAction, 0, len(tasks))
	for _, t := range tasks {
		payload, err := sonic.Marshal(aztables.Entity{PartitionKey: taskPartition, RowKey: rowKey(t.ID)})
		if err != nil {
			return 0, err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: payload})
	}
	if err := s.submit(ctx, actions); err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// dropIfOrphaned completes a concurrent cascade: a task written into a
// category that no longer exists is deleted and the write is rejected.
func (s *TableStore) dropIfOrphaned(ctx context.Context, taskID, categoryID int64) error {
	err := s.requireCategory(ctx, categoryID)
	var vErr *domain.ValidationError
	if err == nil || !errors.As(err, &vErr) {
		return err
	}
	if _, derr := s.tasks.DeleteEntity(ctx, taskPartition, rowKey(taskID), nil); derr != nil && !hasStatus(derr, http.StatusNotFound) {
		return derr
	}
	return err
}

func (s *TableStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := s.listEntities(ctx, s.tasks, taskPartition, func(raw []byte) error {
		t, err := decodeTaskEntity(raw)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.CategoryID != b.CategoryID {
			return a.CategoryID < b.CategoryID
		}
		if a.EffectivePosition() != b.EffectivePosition() {
			return a.EffectivePosition() < b.EffectivePosition()
		}
		return a.ID < b.ID
	})
	return tasks, nil
}

func (s *TableStore) tasksOf(ctx context.Context, categoryID int64) ([]domain.Task, error) {
	all, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(all))
	for _, t := range all {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *TableStore) nextPosition(ctx context.Context, categoryID int64) (int, error) {
	tasks, err := s.tasksOf(ctx, categoryID)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, t := range tasks {
		if p := t.EffectivePosition(); p >= next {
			next = p + 1
		}
	}
	return next, nil
}

func (s *TableStore) getTask(ctx context.Context, id int64) (domain.Task, azcore.ETag, error) {
	resp, err := s.tasks.GetEntity(ctx, taskPartition, rowKey(id), nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.Task{}, "", domain.ErrNotFound
		}
		return domain.Task{}, "", err
	}
	t, err := decodeTaskEntity(resp.Value)
	return t, resp.ETag, err
}

func (s *TableStore) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	t, _, err := s.getTask(ctx, id)
	return t, err
}

func (s *TableStore) requireCategory(ctx context.Context, id int64) error {
	if _, _, err := s.getCategory(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("invalid task", domain.FieldError{Field: "category_id", Error: "unknown category"})
		}
		return err
	}
	return nil
}

func (s *TableStore) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.Normalize()
	if err := s.requireCategory(ctx, t.CategoryID); err != nil {
		return domain.Task{}, err
	}
	if t.Position == nil {
		next, err := s.nextPosition(ctx, t.CategoryID)
		if err != nil {
			return domain.Task{}, err
		}
		t.Position = &next
	}
	id, err := s.nextID(ctx, taskPartition)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	ent, err := encodeTaskEntity(t)
	if err != nil {
		return domain.Task{}, err
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.tasks.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	if err := s.dropIfOrphaned(ctx, t.ID, t.CategoryID); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask applies patch with optimistic concurrency, re-reading the entity
// when another writer got there first.
func (s *TableStore) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		t, etag, err := s.getTask(ctx, id)
		if err != nil {
			return domain.Task{}, err
		}
		moved := patch.CategoryID != nil && *patch.CategoryID != t.CategoryID
		if moved {
			if err := s.requireCategory(ctx, *patch.CategoryID); err != nil {
				return domain.Task{}, err
			}
		}
		patch.Apply(&t)
		if moved && patch.Position == nil {
			next, err := s.nextPosition(ctx, t.CategoryID)
			if err != nil {
				return domain.Task{}, err
			}
			t.Position = &next
		}
		ent, err := encodeTaskEntity(t)
		if err != nil {
			return domain.Task{}, err
		}
		payload, err := sonic.Marshal(ent)
		if err != nil {
			return domain.Task{}, err
		}
		_, err = s.tasks.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if hasStatus(err, http.StatusPreconditionFailed) {
			log.WithFields(log.Fields{"task": id, "attempt": attempt}).Debug("task update conflict, retrying")
			continue
		}
		if err != nil {
			return domain.Task{}, err
		}
		if moved {
			if err := s.dropIfOrphaned(ctx, t.ID, t.CategoryID); err != nil {
				return domain.Task{}, err
			}
		}
		return t, nil
	}
	return domain.Task{}, domain.ErrConcurrencyConflict
}

// UpdatePositions merges the new positions in entity group transactions. Each
// chunk of up to 100 updates is atomic; unknown ids fail before anything is
// written.
func (s *TableStore) UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error {
	known := map[int64]struct{}{}
	all, err := s.ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range all {
		known[t.ID] = struct{}{}
	}
	actions := make([]aztables.TransactionAction, 0, len(updates))
	for _, u := range updates {
		if _, ok := known[u.ID]; !ok {
			return fmt.Errorf("task %d: %w", u.ID, domain.ErrNotFound)
		}
		payload, err := sonic.Marshal(positionEntity{
			Entity:   aztables.Entity{PartitionKey: taskPartition, RowKey: rowKey(u.ID)},
			Position: u.Position,
		})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeUpdateMerge, Entity: payload})
	}
	return s.submit(ctx, actions)
}

func (s *TableStore) DeleteTask(ctx context.Context, id int64) error {
	if _, err := s.tasks.DeleteEntity(ctx, taskPartition, rowKey(id), nil); err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *TableStore) submit(ctx context.Context, actions []aztables.TransactionAction) error {
	for _, chunk := range chunkActions(actions, maxTransactionSize) {
		if _, err := s.tasks.SubmitTransaction(ctx, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

func chunkActions(actions []aztables.TransactionAction, size int) [][]aztables.TransactionAction {
	if size <= 0 {
		size = maxTransactionSize
	}
	var out [][]aztables.TransactionAction
	for start := 0; start < len(actions); start += size {
		end := start + size
		if end > len(actions) {
			end = len(actions)
		}
		out = append(out, actions[start:end])
	}
	return out
}

func encodeCategoryEntity(c domain.Category) categoryEntity {
	return categoryEntity{
		Entity:   aztables.Entity{PartitionKey: categoryPartition, RowKey: rowKey(c.ID)},
		Name:     c.Name,
		Color:    c.Color,
		Position: c.Position,
	}
}

func decodeCategoryEntity(data []byte) (domain.Category, error) {
	var ent categoryEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Category{}, err
	}
	id, err := parseRowKey(ent.RowKey)
	if err != nil {
		return domain.Category{}, fmt.Errorf("category row key %q: %w", ent.RowKey, err)
	}
	return domain.Category{ID: id, Name: ent.Name, Color: ent.Color, Position: ent.Position}, nil
}

func encodeTaskEntity(t domain.Task) (taskEntity, error) {
	members, err := sonic.MarshalString(t.AssignedMembers)
	if err != nil {
		return taskEntity{}, err
	}
	attachments, err := sonic.MarshalString(t.Attachments)
	if err != nil {
		return taskEntity{}, err
	}
	comments, err := sonic.MarshalString(t.Comments)
	if err != nil {
		return taskEntity{}, err
	}
	checklist, err := sonic.MarshalString(t.Checklist)
	if err != nil {
		return taskEntity{}, err
	}
	return taskEntity{
		Entity:          aztables.Entity{PartitionKey: taskPartition, RowKey: rowKey(t.ID)},
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		Priority:        string(t.Priority),
		CategoryID:      t.EffectiveCategoryID(),
		Position:        t.EffectivePosition(),
		DueDate:         t.DueDate,
		StartDate:       t.StartDate,
		EndDate:         t.EndDate,
		AssignedMembers: members,
		Attachments:     attachments,
		Comments:        comments,
		Checklist:       checklist,
	}, nil
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	id, err := parseRowKey(ent.RowKey)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task row key %q: %w", ent.RowKey, err)
	}
	t := domain.Task{
		ID:          id,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		CategoryID:  ent.CategoryID,
		Position:    domain.IntPtr(ent.Position),
		DueDate:     ent.DueDate,
		StartDate:   ent.StartDate,
		EndDate:     ent.EndDate,
	}
	if err := unmarshalList(ent.AssignedMembers, &t.AssignedMembers); err != nil {
		return domain.Task{}, err
	}
	if err := unmarshalList(ent.Attachments, &t.Attachments); err != nil {
		return domain.Task{}, err
	}
	if err := unmarshalList(ent.Comments, &t.Comments); err != nil {
		return domain.Task{}, err
	}
	if err := unmarshalList(ent.Checklist, &t.Checklist); err != nil {
		return domain.Task{}, err
	}
	t.Normalize()
	return t, nil
}

func unmarshalList(raw string, out any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return sonic.UnmarshalString(raw, out)
}
