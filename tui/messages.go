package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

const toastTTL = 4 * time.Second

type toast struct {
	id    int
	text  string
	isErr bool
}

type (
	toastMsg        toast
	toastExpiredMsg struct{ id int }
	refreshedMsg    struct{ err error }
	opDoneMsg       struct{ err error }
	boardEventMsg   domain.BoardEvent
	streamClosedMsg struct{}
)

// toastNotifier hands controller notifications to the UI loop. Sends never
// block; a full buffer drops the message.
type toastNotifier struct {
	ch chan toast
}

func newToastNotifier() *toastNotifier {
	return &toastNotifier{ch: make(chan toast, 32)}
}

func (n *toastNotifier) Error(msg string)   { n.send(toast{text: msg, isErr: true}) }
func (n *toastNotifier) Success(msg string) { n.send(toast{text: msg}) }

func (n *toastNotifier) send(t toast) {
	select {
	case n.ch <- t:
	default:
	}
}

func (n *toastNotifier) listen() tea.Cmd {
	return func() tea.Msg {
		return toastMsg(<-n.ch)
	}
}

func expireToast(id int) tea.Cmd {
	return tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
}

func listenEvents(ch <-chan domain.BoardEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return boardEventMsg(ev)
	}
}

func (m *Model) refresh() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return refreshedMsg{err: ctrl.Refresh(ctx)}
	}
}

// op runs a controller mutation off the UI loop.
func (m *Model) op(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{err: fn(ctx)}
	}
}
