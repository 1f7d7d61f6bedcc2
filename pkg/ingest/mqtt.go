package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/models"
)

// MQTTConfig holds the broker connection and subscription settings
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // e.g. "forecastd/measurements/+", last segment is the model name
}

// MQTTSubscriber feeds measurements published on the broker into a Buffer
type MQTTSubscriber struct {
	client mqtt.Client
	config MQTTConfig
	buffer *Buffer
	now    func() time.Time
	log    *logging.FieldLogger
}

// NewMQTTSubscriber creates a subscriber; Start connects it
func NewMQTTSubscriber(config MQTTConfig, buffer *Buffer) *MQTTSubscriber {
	s := &MQTTSubscriber{
		config: config,
		buffer: buffer,
		now:    time.Now,
		log:    logging.GetLogger().With(logging.Component("ingest"), logging.String("transport", "mqtt")),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("MQTT connection lost", logging.Err(err))
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker. The subscription is (re)established by the connect
// handler so it survives reconnects.
func (s *MQTTSubscriber) Start() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	s.log.Info("Connected to MQTT broker", logging.String("broker", s.config.Broker))
	return nil
}

// Stop disconnects from the broker
func (s *MQTTSubscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
		s.log.Info("Disconnected from MQTT broker")
	}
}

func (s *MQTTSubscriber) onConnect(client mqtt.Client) {
	token := client.Subscribe(s.config.Topic, 1, s.handleMessage)
	if token.Wait() && token.Error() != nil {
		s.log.Error("Failed to subscribe", token.Error(), logging.String("topic", s.config.Topic))
		return
	}
	s.log.Info("Subscribed to measurement topic", logging.String("topic", s.config.Topic))
}

func (s *MQTTSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	m, err := ParsePayload(msg.Topic(), msg.Payload(), s.now())
	if err != nil {
		s.log.Warn("Dropping malformed measurement",
			logging.String("topic", msg.Topic()),
			logging.Err(err))
		return
	}
	s.buffer.Add(m)
}

type mqttPayload struct {
	Timestamp string   `json:"timestamp"`
	Date      string   `json:"date"`
	Value     *float64 `json:"value"`
}

// ParsePayload decodes a streamed measurement. The model is the last topic segment.
// The payload is either JSON {"timestamp"|"date": ..., "value": ...} or a bare number,
// which is stamped with now.
func ParsePayload(topic string, payload []byte, now time.Time) (models.Measurement, error) {
	model := topic
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		model = topic[i+1:]
	}
	if err := models.ValidateModelName(model); err != nil {
		return models.Measurement{}, err
	}

	payload = bytes.TrimSpace(payload)
	m := models.Measurement{ModelName: model, Timestamp: now.UTC()}

	if len(payload) > 0 && payload[0] == '{' {
		var p mqttPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return models.Measurement{}, fmt.Errorf("invalid JSON payload: %w", err)
		}
		if p.Value == nil {
			return models.Measurement{}, fmt.Errorf("payload has no value")
		}
		m.Value = *p.Value

		raw := p.Timestamp
		if raw == "" {
			raw = p.Date
		}
		if raw != "" {
			ts, err := models.ParseTimestamp(raw)
			if err != nil {
				return models.Measurement{}, err
			}
			m.Timestamp = ts
		}
	} else {
		v, err := strconv.ParseFloat(string(payload), 64)
		if err != nil {
			return models.Measurement{}, fmt.Errorf("payload is neither JSON nor a number: %q", payload)
		}
		m.Value = v
	}

	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return models.Measurement{}, fmt.Errorf("value must be finite")
	}
	return m, nil
}
