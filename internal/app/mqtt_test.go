package app

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wiicon_remote/internal/orientation"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }

func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, retained, payload.([]byte)})
	return doneToken{}
}

func TestMQTTPublisherThrottles(t *testing.T) {
	clk := testClock()
	pub := &fakePublisher{}
	m := NewMQTTPublisher(pub, "wiicon/pose", clk)

	st := State{Pose: orientation.Pose{Roll: 1.5, Pitch: -2, Yaw: 90}}
	m.Observe(st)
	m.Observe(st)
	clk.Advance(50 * time.Millisecond)
	m.Observe(st)
	assert.Len(t, pub.msgs, 1)

	clk.Advance(50 * time.Millisecond)
	m.Observe(st)
	require.Len(t, pub.msgs, 2)

	msg := pub.msgs[0]
	assert.Equal(t, "wiicon/pose", msg.topic)
	assert.True(t, msg.retained)

	var p orientation.Pose
	require.NoError(t, json.Unmarshal(msg.payload, &p))
	assert.Equal(t, st.Pose, p)
}

func TestClientID(t *testing.T) {
	assert.Equal(t, "bench-1", ClientID("bench-1"))

	id := ClientID("")
	assert.True(t, strings.HasPrefix(id, "wiicon-"))
	assert.Len(t, id, len("wiicon-")+8)
	assert.NotEqual(t, id, ClientID(""))
}
