// Package device talks to the companion device (phone, TV or speaker) over
// MQTT. The device owns the OS notification scheduler and the audio output;
// this side sends it commands and listens for what it reports back.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBrokerURL = "tcp://0.0.0.0:1883"
	DefaultTimeout   = 5 * time.Second
	qos              = 1
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("device: mqtt operation timed out")

// Broker is the part of mqtt.Client the transports use.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

var _ Broker = (mqtt.Client)(nil)

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	log.Info().Msg("connected to MQTT broker")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Warn().Err(err).Msg("MQTT connection lost")
}

var defaultHandler mqtt.MessageHandler = func(client mqtt.Client, msg mqtt.Message) {
	log.Debug().Str("topic", msg.Topic()).Msg("unhandled MQTT message")
}

// Connect opens a client to brokerURL. Subscriptions survive reconnects.
func Connect(brokerURL, clientID string) (mqtt.Client, error) {
	if brokerURL == "" {
		brokerURL = DefaultBrokerURL
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetDefaultPublishHandler(defaultHandler)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)
	// handlers publish and wait for acks
	opts.SetOrderMatters(false)
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Info().Str("broker", brokerURL).Str("client_id", clientID).Msg("MQTT client initialized")
	return client, nil
}

// Topics of one device.
type Topics struct {
	Notifications      string
	NotificationsState string
	Events             string
	Audio              string
	AudioStatus        string
	Lifecycle          string
}

func TopicsFor(deviceID string) Topics {
	base := "device/" + deviceID
	return Topics{
		Notifications:      base + "/notifications",
		NotificationsState: base + "/notifications/state",
		Events:             base + "/events",
		Audio:              base + "/audio",
		AudioStatus:        base + "/audio/status",
		Lifecycle:          base + "/lifecycle",
	}
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

func publishJSON(ctx context.Context, b Broker, topic string, v any, timeout time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", topic, err)
	}
	if err := wait(ctx, b.Publish(topic, qos, false, payload), timeout); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// publishAsync hands v to the broker without waiting for the ack. A failed
// or missing ack is only logged.
func publishAsync(b Broker, topic string, v any, timeout time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", topic, err)
	}
	token := b.Publish(topic, qos, false, payload)
	go func() {
		if err := wait(context.Background(), token, timeout); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("publish not acknowledged")
		}
	}()
	return nil
}

func subscribe(b Broker, topic string, handler mqtt.MessageHandler, timeout time.Duration) error {
	if err := wait(context.Background(), b.Subscribe(topic, qos, handler), timeout); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	log.Debug().Str("topic", topic).Msg("subscribed")
	return nil
}

func unsubscribe(b Broker, timeout time.Duration, topics ...string) {
	if err := wait(context.Background(), b.Unsubscribe(topics...), timeout); err != nil {
		log.Warn().Err(err).Strs("topics", topics).Msg("failed to unsubscribe")
	}
}
