package board

import "sync"

// ScrollLock suspends scrolling while at least one holder is active. onChange
// fires when the lock flips between held and free.
type ScrollLock struct {
	mu       sync.Mutex
	holders  int
	onChange func(locked bool)
}

func NewScrollLock(onChange func(locked bool)) *ScrollLock {
	return &ScrollLock{onChange: onChange}
}

// Acquire takes the lock. The returned release is safe to call more than once.
func (l *ScrollLock) Acquire() (release func()) {
	l.mu.Lock()
	l.holders++
	first := l.holders == 1
	l.mu.Unlock()
	if first && l.onChange != nil {
		l.onChange(true)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holders--
			last := l.holders == 0
			l.mu.Unlock()
			if last && l.onChange != nil {
				l.onChange(false)
			}
		})
	}
}

func (l *ScrollLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders > 0
}
