package domain

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Member struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Attachment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Comment struct {
	ID        int64  `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at,omitempty"`
}

type ChecklistItem struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// CategoryRef is the nested category object older payloads carry instead of category_id.
type CategoryRef struct {
	ID int64 `json:"id"`
}

// Task is a card on the board.
type Task struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title" validate:"required,max=255"`
	Description     string          `json:"description"`
	Status          Status          `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority        Priority        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	CategoryID      int64           `json:"category_id"`
	Category        *CategoryRef    `json:"category,omitempty"`
	Position        *int            `json:"position,omitempty" validate:"omitempty,min=0"`
	DueDate         *string         `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartDate       *string         `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate         *string         `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AssignedMembers []Member        `json:"assigned_members"`
	Attachments     []Attachment    `json:"attachments"`
	Comments        []Comment       `json:"comments"`
	Checklist       []ChecklistItem `json:"checklist"`
}

// EffectiveCategoryID returns category_id, falling back to the legacy nested category.
func (t Task) EffectiveCategoryID() int64 {
	if t.CategoryID != 0 {
		return t.CategoryID
	}
	if t.Category != nil {
		return t.Category.ID
	}
	return 0
}

// EffectivePosition treats a missing position as 0.
func (t Task) EffectivePosition() int {
	if t.Position == nil {
		return 0
	}
	return *t.Position
}

// DuplicateSuffix is appended to the title of a duplicated card.
const DuplicateSuffix = " (Copie)"

// Duplicate returns the payload used to create a copy of t. The id and position
// are dropped so the server assigns both, and the copy starts in todo.
func (t Task) Duplicate() Task {
	cp := Task{
		Title:           t.Title + DuplicateSuffix,
		Description:     t.Description,
		Status:          StatusTodo,
		Priority:        t.Priority,
		CategoryID:      t.EffectiveCategoryID(),
		DueDate:         cloneString(t.DueDate),
		StartDate:       cloneString(t.StartDate),
		EndDate:         cloneString(t.EndDate),
		AssignedMembers: append([]Member(nil), t.AssignedMembers...),
		Checklist:       make([]ChecklistItem, 0, len(t.Checklist)),
	}
	for _, item := range t.Checklist {
		cp.Checklist = append(cp.Checklist, ChecklistItem{Label: item.Label})
	}
	return cp
}

// Normalize coalesces nil collections and applies defaults for status and priority.
func (t *Task) Normalize() {
	if t.CategoryID == 0 && t.Category != nil {
		t.CategoryID = t.Category.ID
	}
	t.Category = nil
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.AssignedMembers == nil {
		t.AssignedMembers = []Member{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
	if t.Comments == nil {
		t.Comments = []Comment{}
	}
	if t.Checklist == nil {
		t.Checklist = []ChecklistItem{}
	}
}

// TaskPatch carries a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title           *string          `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Description     *string          `json:"description,omitempty"`
	Status          *Status          `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress done"`
	Priority        *Priority        `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	CategoryID      *int64           `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	Position        *int             `json:"position,omitempty" validate:"omitempty,min=0"`
	DueDate         *string          `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartDate       *string          `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate         *string          `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AssignedMembers *[]Member        `json:"assigned_members,omitempty"`
	Attachments     *[]Attachment    `json:"attachments,omitempty"`
	Comments        *[]Comment       `json:"comments,omitempty"`
	Checklist       *[]ChecklistItem `json:"checklist,omitempty"`
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.CategoryID == nil && p.Position == nil && p.DueDate == nil && p.StartDate == nil &&
		p.EndDate == nil && p.AssignedMembers == nil && p.Attachments == nil && p.Comments == nil &&
		p.Checklist == nil
}

// Apply copies the set fields of p onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
		t.Category = nil
	}
	if p.Position != nil {
		pos := *p.Position
		t.Position = &pos
	}
	if p.DueDate != nil {
		t.DueDate = cloneString(p.DueDate)
	}
	if p.StartDate != nil {
		t.StartDate = cloneString(p.StartDate)
	}
	if p.EndDate != nil {
		t.EndDate = cloneString(p.EndDate)
	}
	if p.AssignedMembers != nil {
		t.AssignedMembers = append([]Member{}, (*p.AssignedMembers)...)
	}
	if p.Attachments != nil {
		t.Attachments = append([]Attachment{}, (*p.Attachments)...)
	}
	if p.Comments != nil {
		t.Comments = append([]Comment{}, (*p.Comments)...)
	}
	if p.Checklist != nil {
		t.Checklist = append([]ChecklistItem{}, (*p.Checklist)...)
	}
}

// PositionUpdate is one entry of a batched reorder.
type PositionUpdate struct {
	ID       int64 `json:"id" validate:"required,gt=0"`
	Position int   `json:"position" validate:"min=0"`
}

// IntPtr is a small helper for optional positions.
func IntPtr(v int) *int { return &v }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
