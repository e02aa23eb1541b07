// Package publish bridges accepted gesture events onto an MQTT broker so
// downstream automations can react without linking the engine directly.
package publish

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/gestures/internal/gesture"
	"github.com/banshee-data/gestures/internal/monitoring"
)

// MQTTConfig configures the publish bridge.
type MQTTConfig struct {
	BrokerURL   string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string // gestures published under <prefix>/gesture/<gesture_id>
}

// DefaultMQTTConfig returns sensible local-broker defaults.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		BrokerURL:   "tcp://localhost:1883",
		ClientID:    "gesture-engine",
		TopicPrefix: "gestures",
	}
}

// MQTTBridge subscribes to engine gesture and sequence events and republishes
// them as JSON payloads.
type MQTTBridge struct {
	client      mqtt.Client
	topicPrefix string
	unsubscribe []func()
}

// NewMQTTBridge connects to the broker. The connection is established
// eagerly so misconfiguration surfaces at startup rather than on first
// gesture.
func NewMQTTBridge(cfg MQTTConfig) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.BrokerURL, token.Error())
	}
	monitoring.Logf("publish: connected to MQTT broker at %s", cfg.BrokerURL)

	return &MQTTBridge{client: client, topicPrefix: cfg.TopicPrefix}, nil
}

// Attach wires the bridge to an engine's accepted-gesture and sequence
// streams. Call Close to detach and disconnect.
func (b *MQTTBridge) Attach(engine *gesture.Engine) {
	b.unsubscribe = append(b.unsubscribe,
		engine.OnGesture(func(r gesture.RecognitionResult) {
			b.publishJSON(fmt.Sprintf("%s/gesture/%s", b.topicPrefix, r.GestureID), r)
		}),
		engine.OnSequence(func(ev gesture.SequenceEvent) {
			b.publishJSON(fmt.Sprintf("%s/sequence/%s", b.topicPrefix, ev.SequenceID), ev)
		}),
	)
}

func (b *MQTTBridge) publishJSON(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		monitoring.Logf("publish: marshal for %s: %v", topic, err)
		return
	}
	token := b.client.Publish(topic, 0, false, payload)
	// Fire and forget; a slow broker must not stall the recognition path.
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			monitoring.Logf("publish: %s: %v", topic, err)
		}
	}()
}

// Close detaches from the engine and disconnects from the broker.
func (b *MQTTBridge) Close() {
	for _, cancel := range b.unsubscribe {
		cancel()
	}
	b.client.Disconnect(250)
}
