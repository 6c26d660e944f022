package device

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/lifecycle"
)

type lifecycleMessage struct {
	State string `json:"state"`
}

// AppState reports the companion app's foreground state.
type AppState struct {
	*lifecycle.Broadcaster
	broker  Broker
	topics  Topics
	timeout time.Duration
}

var _ lifecycle.Source = (*AppState)(nil)

func NewAppState(broker Broker, deviceID string, timeout time.Duration) *AppState {
	return &AppState{
		Broadcaster: lifecycle.NewBroadcaster(),
		broker:      broker,
		topics:      TopicsFor(deviceID),
		timeout:     timeout,
	}
}

func (a *AppState) Start() error {
	return subscribe(a.broker, a.topics.Lifecycle, a.handle, a.timeout)
}

func (a *AppState) Stop() {
	unsubscribe(a.broker, a.timeout, a.topics.Lifecycle)
}

func (a *AppState) handle(_ mqtt.Client, msg mqtt.Message) {
	var m lifecycleMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid lifecycle message")
		return
	}
	state, ok := lifecycle.ParseState(m.State)
	if !ok {
		log.Warn().Str("state", m.State).Msg("unknown app state")
		return
	}
	log.Debug().Str("state", string(state)).Msg("app state changed")
	a.Publish(state)
}
