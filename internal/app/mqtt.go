package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/orientation"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// Default spacing between MQTT pose messages.
const mqttPublishInterval = 100 * time.Millisecond

// mqttPublisher is the part of mqtt.Client the publisher uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher mirrors the pose to a retained MQTT topic, throttled so a
// slow broker cannot hold up the polling loop.
type MQTTPublisher struct {
	client   mqttPublisher
	topic    string
	interval time.Duration
	clock    timeutil.Clock

	mu   sync.Mutex
	last time.Time
}

// ClientID returns id, or "wiicon-<random>" when id is empty.
func ClientID(id string) string {
	if id != "" {
		return id
	}
	return "wiicon-" + uuid.NewString()[:8]
}

// ConnectMQTT connects to broker with the given client ID.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	log.Infof("mqtt: connected to %s as %s", broker, clientID)
	return client, nil
}

// NewMQTTPublisher publishes on topic through client.
func NewMQTTPublisher(client mqttPublisher, topic string, clock timeutil.Clock) *MQTTPublisher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &MQTTPublisher{
		client:   client,
		topic:    topic,
		interval: mqttPublishInterval,
		clock:    clock,
	}
}

// Observe implements Observer.
func (m *MQTTPublisher) Observe(st State) {
	m.mu.Lock()
	now := m.clock.Now()
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		m.mu.Unlock()
		return
	}
	m.last = now
	m.mu.Unlock()

	payload, err := json.Marshal(st.Pose)
	if err != nil {
		log.Warnf("mqtt: json marshal error (pose): %v", err)
		return
	}

	// Not waiting on the token: delivery is best effort.
	token := m.client.Publish(m.topic, 0, true, payload)
	go func() {
		if token.WaitTimeout(time.Second) && token.Error() != nil {
			log.Warnf("mqtt: publish error (%s): %v", m.topic, token.Error())
		}
	}()
}

// SubscribePose calls fn for every pose published on topic.
func SubscribePose(client mqtt.Client, topic string, fn func(orientation.Pose)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p orientation.Pose
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Warnf("mqtt: pose unmarshal error: %v", err)
			return
		}
		fn(p)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Infof("mqtt: subscribed to %s", topic)
	return nil
}
