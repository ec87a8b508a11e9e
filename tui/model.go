package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mabroukmoatez/formly-saas-sub017/board"
	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// mouseDragThreshold is the drag distance in terminal cells.
const mouseDragThreshold = 3

type mode int

const (
	modeBoard mode = iota
	modeDetail
	modeInput
)

type inputKind int

const (
	inputNewTask inputKind = iota
	inputNewColumn
	inputRename
	inputSearch
)

type Options struct {
	API board.API
	// Events, when set, triggers a refresh for every board change.
	Events <-chan domain.BoardEvent
	Clock  board.Clock
}

// Model is the interactive board.
type Model struct {
	ctx    context.Context
	ctrl   *board.Controller
	drag   *board.DragTracker
	scroll *board.ScrollLock
	notes  *toastNotifier
	events <-chan domain.BoardEvent

	keys  keyMap
	help  help.Model
	vp    viewport.Model
	input textinput.Model

	mode      mode
	inputKind inputKind
	filter    board.Filter

	col, row           int
	hoverCol, hoverRow int
	detailID           int64

	toasts    []toast
	nextToast int
	width     int
	height    int
	loaded    bool
	err       error
}

func New(ctx context.Context, opts Options) *Model {
	notes := newToastNotifier()
	scroll := board.NewScrollLock(nil)
	input := textinput.New()
	input.CharLimit = 255
	input.Prompt = "> "

	return &Model{
		ctx:    ctx,
		ctrl:   board.NewController(opts.API, notes),
		drag:   board.NewDragTracker(board.DragConfig{Threshold: mouseDragThreshold, Clock: opts.Clock, ScrollLock: scroll}),
		scroll: scroll,
		notes:  notes,
		events: opts.Events,
		keys:   defaultKeyMap(),
		help:   help.New(),
		vp:     viewport.New(80, 20),
		input:  input,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.notes.listen(), listenEvents(m.events))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.layout()
		return m, nil

	case refreshedMsg:
		m.loaded = true
		m.err = msg.err
		m.clampSelection()
		m.renderContent()
		return m, nil

	case opDoneMsg:
		m.clampSelection()
		m.renderContent()
		return m, nil

	case toastMsg:
		m.nextToast++
		t := toast(msg)
		t.id = m.nextToast
		m.toasts = append(m.toasts, t)
		if len(m.toasts) > 3 {
			m.toasts = m.toasts[len(m.toasts)-3:]
		}
		return m, tea.Batch(expireToast(t.id), m.notes.listen())

	case toastExpiredMsg:
		for i, t := range m.toasts {
			if t.id == msg.id {
				m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
				break
			}
		}
		return m, nil

	case boardEventMsg:
		return m, tea.Batch(m.refresh(), listenEvents(m.events))

	case streamClosedMsg:
		m.notes.Error("Live updates stopped")
		return m, nil

	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	case tea.KeyMsg:
		switch m.mode {
		case modeInput:
			return m, m.handleInputKey(msg)
		case modeDetail:
			return m, m.handleDetailKey(msg)
		default:
			return m, m.handleBoardKey(msg)
		}
	}
	return m, nil
}

func (m *Model) layout() {
	helpLines := strings.Count(m.helpView(), "\n") + 1
	h := m.height - titleLines - helpLines - 1
	if m.mode == modeInput {
		h--
	}
	if h < 3 {
		h = 3
	}
	m.vp.Width = m.width
	m.vp.Height = h
	m.renderContent()
}

// columns returns the columns currently shown.
func (m *Model) columns() []domain.Category {
	return m.ctrl.VisibleCategories(m.filter)
}

func (m *Model) columnTasks(col int) []domain.Task {
	cols := m.columns()
	if col < 0 || col >= len(cols) {
		return nil
	}
	return m.ctrl.Visible(cols[col].ID, m.filter)
}

func (m *Model) selected() (domain.Task, bool) {
	tasks := m.columnTasks(m.col)
	if m.row < 0 || m.row >= len(tasks) {
		return domain.Task{}, false
	}
	return tasks[m.row], true
}

func (m *Model) selectedColumn() (domain.Category, bool) {
	cols := m.columns()
	if m.col < 0 || m.col >= len(cols) {
		return domain.Category{}, false
	}
	return cols[m.col], true
}

func (m *Model) clampSelection() {
	cols := m.columns()
	if m.col >= len(cols) {
		m.col = len(cols) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	n := len(m.columnTasks(m.col))
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

// targetAt is the drop target for a cell; rows past the last card are the
// column's empty space.
func (m *Model) targetAt(col, row int) board.Target {
	cols := m.columns()
	if col < 0 || col >= len(cols) {
		return board.Target{}
	}
	tasks := m.columnTasks(col)
	if row >= 0 && row < len(tasks) {
		return board.OverTask(tasks[row].ID)
	}
	return board.OverColumn(cols[col].ID)
}

func (m *Model) handleBoardKey(msg tea.KeyMsg) tea.Cmd {
	if m.drag.Dragging() {
		return m.handleDragKey(msg)
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.drag.Cancel()
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
	case key.Matches(msg, m.keys.Up):
		m.row--
		m.clampSelection()
	case key.Matches(msg, m.keys.Down):
		m.row++
		m.clampSelection()
	case key.Matches(msg, m.keys.Left):
		m.col--
		m.clampSelection()
	case key.Matches(msg, m.keys.Right):
		m.col++
		m.clampSelection()
	case key.Matches(msg, m.keys.Grab):
		if t, ok := m.selected(); ok {
			m.drag.Activate(t.ID)
			m.hoverCol, m.hoverRow = m.col, m.row
		}
	case key.Matches(msg, m.keys.Open):
		m.openDetail()
	case key.Matches(msg, m.keys.Back):
		if m.filter != (board.Filter{}) {
			m.filter = board.Filter{}
			m.clampSelection()
		}
	case key.Matches(msg, m.keys.Refresh):
		return m.refresh()
	case key.Matches(msg, m.keys.NewTask):
		if _, ok := m.selectedColumn(); ok {
			return m.prompt(inputNewTask, "Task title", "")
		}
	case key.Matches(msg, m.keys.NewColumn):
		return m.prompt(inputNewColumn, "Column name", "")
	case key.Matches(msg, m.keys.Rename):
		if c, ok := m.selectedColumn(); ok {
			return m.prompt(inputRename, "New name", c.Name)
		}
	case key.Matches(msg, m.keys.Search):
		return m.prompt(inputSearch, "Search", m.filter.Query)
	case key.Matches(msg, m.keys.Category):
		m.cycleCategoryFilter()
	case key.Matches(msg, m.keys.Duplicate):
		if t, ok := m.selected(); ok {
			id := t.ID
			return m.op(func(ctx context.Context) error {
				_, err := m.ctrl.DuplicateTask(ctx, id)
				return err
			})
		}
	case key.Matches(msg, m.keys.Status):
		if t, ok := m.selected(); ok {
			id, next := t.ID, nextStatus(t.Status)
			return m.op(func(ctx context.Context) error {
				_, err := m.ctrl.UpdateTask(ctx, id, domain.TaskPatch{Status: &next})
				return err
			})
		}
	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selected(); ok {
			id := t.ID
			return m.op(func(ctx context.Context) error { return m.ctrl.DeleteTask(ctx, id) })
		}
	case key.Matches(msg, m.keys.DeleteCol):
		if c, ok := m.selectedColumn(); ok {
			id := c.ID
			return m.op(func(ctx context.Context) error { return m.ctrl.DeleteCategory(ctx, id) })
		}
	}
	m.renderContent()
	return nil
}

func (m *Model) handleDragKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.drag.Cancel()
		return tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.drag.Cancel()
	case key.Matches(msg, m.keys.Up):
		if m.hoverRow > 0 {
			m.hoverRow--
		}
	case key.Matches(msg, m.keys.Down):
		if m.hoverRow < len(m.columnTasks(m.hoverCol)) {
			m.hoverRow++
		}
	case key.Matches(msg, m.keys.Left):
		if m.hoverCol > 0 {
			m.hoverCol--
			m.clampHover()
		}
	case key.Matches(msg, m.keys.Right):
		if m.hoverCol < len(m.columns())-1 {
			m.hoverCol++
			m.clampHover()
		}
	case key.Matches(msg, m.keys.Grab), key.Matches(msg, m.keys.Open):
		return m.drop(m.targetAt(m.hoverCol, m.hoverRow))
	}
	m.renderContent()
	return nil
}

func (m *Model) clampHover() {
	if n := len(m.columnTasks(m.hoverCol)); m.hoverRow > n {
		m.hoverRow = n
	}
}

// drop ends the drag on the UI loop and applies it in the background.
func (m *Model) drop(target board.Target) tea.Cmd {
	id := m.drag.End()
	m.col, m.row = m.hoverCol, m.hoverRow
	m.clampSelection()
	m.renderContent()
	if id == 0 {
		return nil
	}
	return m.op(func(ctx context.Context) error {
		_, err := m.ctrl.Drop(ctx, id, target)
		return err
	})
}

func (m *Model) openDetail() {
	if !m.drag.CanOpenDetail() {
		return
	}
	t, ok := m.selected()
	if !ok {
		return
	}
	m.detailID = t.ID
	m.mode = modeDetail
	m.vp.SetContent(renderDetail(t, m.width))
	m.vp.GotoTop()
}

func (m *Model) handleDetailKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Open):
		m.mode = modeBoard
		m.renderContent()
		return nil
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return cmd
}

func (m *Model) prompt(kind inputKind, placeholder, value string) tea.Cmd {
	m.mode = modeInput
	m.inputKind = kind
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.layout()
	return m.input.Focus()
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		kind := m.inputKind
		m.closeInput()
		return m.submitInput(kind, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) closeInput() {
	m.input.Blur()
	m.input.Reset()
	m.mode = modeBoard
	m.layout()
}

func (m *Model) submitInput(kind inputKind, value string) tea.Cmd {
	if kind == inputSearch {
		m.filter.Query = value
		m.clampSelection()
		m.renderContent()
		return nil
	}
	if value == "" {
		return nil
	}
	switch kind {
	case inputNewTask:
		c, ok := m.selectedColumn()
		if !ok {
			return nil
		}
		t := domain.Task{Title: value, CategoryID: c.ID}
		return m.op(func(ctx context.Context) error {
			_, err := m.ctrl.CreateTask(ctx, t)
			return err
		})
	case inputNewColumn:
		return m.op(func(ctx context.Context) error {
			_, err := m.ctrl.CreateCategory(ctx, value, "")
			return err
		})
	case inputRename:
		c, ok := m.selectedColumn()
		if !ok {
			return nil
		}
		id := c.ID
		return m.op(func(ctx context.Context) error {
			_, err := m.ctrl.RenameCategory(ctx, id, value)
			return err
		})
	}
	return nil
}

func (m *Model) cycleCategoryFilter() {
	cats := m.ctrl.Categories()
	if len(cats) == 0 {
		return
	}
	next := int64(0)
	if m.filter.CategoryID == 0 {
		next = cats[0].ID
	} else {
		for i, c := range cats {
			if c.ID == m.filter.CategoryID && i+1 < len(cats) {
				next = cats[i+1].ID
			}
		}
	}
	m.filter.CategoryID = next
	m.col, m.row = 0, 0
	m.clampSelection()
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if m.mode != modeBoard {
		if m.mode == modeDetail {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return cmd
		}
		return nil
	}
	if msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown {
		if m.scroll.Locked() {
			return nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return cmd
	}

	col, row, ok := m.hitTest(msg.X, msg.Y)
	pt := board.Point{X: msg.X, Y: msg.Y}
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || !ok {
			return nil
		}
		tasks := m.columnTasks(col)
		if row < 0 || row >= len(tasks) {
			return nil
		}
		m.col, m.row = col, row
		m.drag.Press(tasks[row].ID, pt)
	case tea.MouseActionMotion:
		if m.drag.PointerMove(pt) && ok {
			m.hoverCol, m.hoverRow = col, row
			m.clampHover()
		}
	case tea.MouseActionRelease:
		if m.drag.Dragging() {
			if !ok {
				m.drag.Cancel()
				break
			}
			m.hoverCol, m.hoverRow = col, row
			return m.drop(m.targetAt(col, row))
		}
		if m.drag.Release() {
			m.openDetail()
			return nil
		}
	}
	m.renderContent()
	return nil
}

// hitTest maps a screen cell to a column and row of the board.
func (m *Model) hitTest(x, y int) (col, row int, ok bool) {
	line := y - titleLines + m.vp.YOffset
	if y < titleLines || y >= titleLines+m.vp.Height {
		return 0, 0, false
	}
	col = x / (columnWidth + columnGap)
	if col >= len(m.columns()) || x%(columnWidth+columnGap) >= columnWidth {
		return 0, 0, false
	}
	return col, line - columnHeaderLines, true
}

func nextStatus(s domain.Status) domain.Status {
	switch s {
	case domain.StatusTodo:
		return domain.StatusInProgress
	case domain.StatusInProgress:
		return domain.StatusDone
	default:
		return domain.StatusTodo
	}
}
