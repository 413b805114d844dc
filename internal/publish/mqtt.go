// Package publish forwards sentinel outputs to the MQTT broker as JSON,
// one topic per stream.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
)

// MQTT topics for sentinel outputs. Alert and mode are published
// retained so late subscribers see the current state.
const (
	TopicFix   = "sentinel/fix"
	TopicAlert = "sentinel/alert"
	TopicMode  = "sentinel/mode"
)

// modeMessage is the retained payload on TopicMode.
type modeMessage struct {
	Mode string    `json:"mode"`
	Time time.Time `json:"time"`
}

// MQTTPublisher implements arbiter.Sink over a broker connection.
type MQTTPublisher struct {
	client mqtt.Client
}

// NewMQTT connects to the broker and announces Tracking mode.
func NewMQTT(broker, clientID string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	logging.Info().Str("broker", broker).Msg("connected to MQTT broker")

	p := &MQTTPublisher{client: client}
	p.ModeChanged(arbiter.ModeTracking)
	return p, nil
}

// PublishFix publishes one position fix.
func (p *MQTTPublisher) PublishFix(fix gnss.FixSample) {
	p.publish(TopicFix, false, fix)
}

// Alert publishes the one-shot spoofing alert, retained.
func (p *MQTTPublisher) Alert(a arbiter.Alert) {
	p.publish(TopicAlert, true, a)
}

// ModeChanged publishes the current mode, retained.
func (p *MQTTPublisher) ModeChanged(m arbiter.Mode) {
	p.publish(TopicMode, true, modeMessage{Mode: m.String(), Time: time.Now().UTC()})
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

func (p *MQTTPublisher) publish(topic string, retained bool, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("marshal error")
		return
	}

	token := p.client.Publish(topic, 0, retained, data)
	token.Wait()
	if token.Error() != nil {
		logging.Error().Err(token.Error()).Str("topic", topic).Msg("publish error")
	}
}
