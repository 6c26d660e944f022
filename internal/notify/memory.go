package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// Memory is a Facility kept entirely in process. Fire moves due records to
// the presented list, which is what a real device does on delivery.
type Memory struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	granted   bool
	scheduled map[string]model.ScheduledNotification
	presented map[string]model.ScheduledNotification
	listeners map[int]func(model.NotificationEvent)
	nextSub   int

	// RegisterHook, when set, is consulted before every registration and lets
	// tests make single registrations fail.
	RegisterHook func(triggerAt time.Time, content model.Content) error
}

var _ Facility = (*Memory)(nil)

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:     clock,
		granted:   true,
		scheduled: make(map[string]model.ScheduledNotification),
		presented: make(map[string]model.ScheduledNotification),
		listeners: make(map[int]func(model.NotificationEvent)),
	}
}

// Subscribe registers fn for received and tapped events. The returned func
// removes it.
func (m *Memory) Subscribe(fn func(model.NotificationEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Memory) emit(ev model.NotificationEvent) {
	m.mu.Lock()
	fns := make([]func(model.NotificationEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SetPermission changes what Permission reports.
func (m *Memory) SetPermission(granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted = granted
}

func (m *Memory) Permission(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted, nil
}

func (m *Memory) Register(_ context.Context, triggerAt time.Time, content model.Content) (string, error) {
	m.mu.Lock()
	hook := m.RegisterHook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(triggerAt, content); err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled[id] = model.ScheduledNotification{
		ID:        id,
		Prayer:    content.Data.Prayer,
		TriggerAt: triggerAt,
		Content:   content,
	}
	return id, nil
}

func (m *Memory) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scheduled[id]; !ok {
		return fmt.Errorf("notification %s not scheduled", id)
	}
	delete(m.scheduled, id)
	return nil
}

func (m *Memory) CancelAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = make(map[string]model.ScheduledNotification)
	return nil
}

// Scheduled returns pending records ordered by trigger time.
func (m *Memory) Scheduled(context.Context) ([]model.ScheduledNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedRecords(m.scheduled), nil
}

func (m *Memory) DismissPresented(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presented = make(map[string]model.ScheduledNotification)
	return nil
}

// Presented returns delivered, not yet dismissed records.
func (m *Memory) Presented() []model.ScheduledNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedRecords(m.presented)
}

// Fire delivers every record due at the facility clock's now, emits a
// received event for each and returns them.
func (m *Memory) Fire() []model.ScheduledNotification {
	now := m.clock.Now()
	m.mu.Lock()
	var due []model.ScheduledNotification
	for id, rec := range m.scheduled {
		if !rec.TriggerAt.After(now) {
			due = append(due, rec)
			m.presented[id] = rec
			delete(m.scheduled, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].TriggerAt.Before(due[j].TriggerAt) })
	for _, rec := range due {
		m.emit(model.NotificationEvent{Kind: model.EventReceived, ID: rec.ID, Content: rec.Content})
	}
	return due
}

// Tap simulates the user opening a presented notification.
func (m *Memory) Tap(id string) error {
	m.mu.Lock()
	rec, ok := m.presented[id]
	if ok {
		delete(m.presented, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("notification %s not presented", id)
	}
	m.emit(model.NotificationEvent{Kind: model.EventTapped, ID: rec.ID, Content: rec.Content})
	return nil
}

func sortedRecords(in map[string]model.ScheduledNotification) []model.ScheduledNotification {
	out := make([]model.ScheduledNotification, 0, len(in))
	for _, rec := range in {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].TriggerAt.Before(out[j].TriggerAt)
	})
	return out
}
