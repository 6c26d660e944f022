package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/notify"
)

type commandOp string

const (
	opRegister         commandOp = "register"
	opCancel           commandOp = "cancel"
	opCancelAll        commandOp = "cancel_all"
	opDismissPresented commandOp = "dismiss_presented"
)

type command struct {
	Op        commandOp      `json:"op"`
	ID        string         `json:"id,omitempty"`
	TriggerAt *time.Time     `json:"triggerAt,omitempty"`
	Content   *model.Content `json:"content,omitempty"`
}

// eventMessage is published by the device on the events topic. Kind is
// "received", "tapped" or "permission".
type eventMessage struct {
	Kind    string        `json:"kind"`
	ID      string        `json:"id,omitempty"`
	Content model.Content `json:"content"`
	Granted *bool         `json:"granted,omitempty"`
}

// stateMessage is the retained inventory of pending records the device
// publishes whenever it changes.
type stateMessage struct {
	Scheduled []model.ScheduledNotification `json:"scheduled"`
}

// Notifications is the device's notification scheduler. It mirrors the
// records it registered and replaces the mirror with the device inventory
// when one arrives.
type Notifications struct {
	broker  Broker
	topics  Topics
	timeout time.Duration

	mu        sync.Mutex
	granted   bool
	records   map[string]model.ScheduledNotification
	listeners map[int]func(model.NotificationEvent)
	next      int

	synced     chan struct{}
	syncedOnce sync.Once
}

var _ notify.Facility = (*Notifications)(nil)

func NewNotifications(broker Broker, deviceID string, timeout time.Duration) *Notifications {
	return &Notifications{
		broker:    broker,
		topics:    TopicsFor(deviceID),
		timeout:   timeout,
		granted:   true,
		records:   make(map[string]model.ScheduledNotification),
		listeners: make(map[int]func(model.NotificationEvent)),
		synced:    make(chan struct{}),
	}
}

// Start subscribes to the device's events and inventory, then waits up to
// the timeout for the retained inventory so Scheduled reflects the device
// once it returns. A device that has never published one is not an error.
func (n *Notifications) Start() error {
	if err := subscribe(n.broker, n.topics.NotificationsState, n.handleState, n.timeout); err != nil {
		return err
	}
	if err := subscribe(n.broker, n.topics.Events, n.handleEvent, n.timeout); err != nil {
		return err
	}

	timer := time.NewTimer(n.timeout)
	defer timer.Stop()
	select {
	case <-n.synced:
	case <-timer.C:
		log.Warn().Dur("waited", n.timeout).Msg("no device inventory received, starting with an empty mirror")
	}
	return nil
}

func (n *Notifications) Stop() {
	unsubscribe(n.broker, n.timeout, n.topics.Events, n.topics.NotificationsState)
}

func (n *Notifications) Subscribe(fn func(model.NotificationEvent)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

func (n *Notifications) handleEvent(_ mqtt.Client, msg mqtt.Message) {
	var ev eventMessage
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid notification event")
		return
	}

	var kind model.EventKind
	switch ev.Kind {
	case "permission":
		if ev.Granted != nil {
			n.mu.Lock()
			n.granted = *ev.Granted
			n.mu.Unlock()
			log.Info().Bool("granted", *ev.Granted).Msg("device notification permission changed")
		}
		return
	case string(model.EventReceived):
		kind = model.EventReceived
		n.mu.Lock()
		delete(n.records, ev.ID)
		n.mu.Unlock()
	case string(model.EventTapped):
		kind = model.EventTapped
	default:
		log.Debug().Str("kind", ev.Kind).Msg("unknown device event")
		return
	}

	n.mu.Lock()
	fns := make([]func(model.NotificationEvent), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	out := model.NotificationEvent{Kind: kind, ID: ev.ID, Content: ev.Content}
	for _, fn := range fns {
		fn(out)
	}
}

func (n *Notifications) handleState(_ mqtt.Client, msg mqtt.Message) {
	var st stateMessage
	if err := json.Unmarshal(msg.Payload(), &st); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid notification inventory")
		return
	}
	records := make(map[string]model.ScheduledNotification, len(st.Scheduled))
	for _, rec := range st.Scheduled {
		records[rec.ID] = rec
	}
	n.mu.Lock()
	n.records = records
	n.mu.Unlock()
	n.syncedOnce.Do(func() { close(n.synced) })
	log.Debug().Int("scheduled", len(records)).Msg("device inventory synced")
}

func (n *Notifications) Permission(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.granted, nil
}

func (n *Notifications) Register(ctx context.Context, triggerAt time.Time, content model.Content) (string, error) {
	id := uuid.NewString()
	if err := publishJSON(ctx, n.broker, n.topics.Notifications, command{
		Op:        opRegister,
		ID:        id,
		TriggerAt: &triggerAt,
		Content:   &content,
	}, n.timeout); err != nil {
		return "", err
	}

	n.mu.Lock()
	n.records[id] = model.ScheduledNotification{ID: id, Prayer: content.Data.Prayer, TriggerAt: triggerAt, Content: content}
	n.mu.Unlock()
	return id, nil
}

func (n *Notifications) Cancel(ctx context.Context, id string) error {
	if err := publishJSON(ctx, n.broker, n.topics.Notifications, command{Op: opCancel, ID: id}, n.timeout); err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	n.mu.Lock()
	delete(n.records, id)
	n.mu.Unlock()
	return nil
}

func (n *Notifications) CancelAll(ctx context.Context) error {
	if err := publishJSON(ctx, n.broker, n.topics.Notifications, command{Op: opCancelAll}, n.timeout); err != nil {
		return err
	}
	n.mu.Lock()
	n.records = make(map[string]model.ScheduledNotification)
	n.mu.Unlock()
	return nil
}

func (n *Notifications) Scheduled(context.Context) ([]model.ScheduledNotification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.ScheduledNotification, 0, len(n.records))
	for _, rec := range n.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerAt.Before(out[j].TriggerAt) })
	return out, nil
}

func (n *Notifications) DismissPresented(ctx context.Context) error {
	return publishJSON(ctx, n.broker, n.topics.Notifications, command{Op: opDismissPresented}, n.timeout)
}
