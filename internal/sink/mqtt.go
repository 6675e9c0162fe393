package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const mqttTimeout = 5 * time.Second

// MQTT publishes events to <prefix>/<node>/readings with QoS 0.
type MQTT struct {
	client mqtt.Client
	prefix string
}

// NewMQTT connects to broker (e.g. "tcp://localhost:1883").
func NewMQTT(broker, prefix string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("sensormon-" + uuid.NewString()[:8]).
		SetConnectTimeout(mqttTimeout).
		SetAutoReconnect(true)
	c := mqtt.NewClient(opts)

	token := c.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return newMQTT(c, prefix), nil
}

func newMQTT(c mqtt.Client, prefix string) *MQTT {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "sensormon"
	}
	return &MQTT{client: c, prefix: prefix}
}

// Name identifies the sink in publish errors.
func (m *MQTT) Name() string { return "mqtt" }

// Topic returns the topic events of node are published to.
func (m *MQTT) Topic(node string) string {
	return m.prefix + "/" + node + "/readings"
}

// Publish sends ev and waits for the broker to take it.
func (m *MQTT) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.marshal()
	if err != nil {
		return err
	}
	token := m.client.Publish(m.Topic(ev.Node), 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttTimeout):
		return fmt.Errorf("mqtt publish %s: timeout", m.Topic(ev.Node))
	}
}

// Close disconnects, allowing 250ms for in-flight work.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
