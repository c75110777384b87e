package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kavia-common/network-device-manager/internal/events"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes. Unused paho.Client methods panic through the
// nil embedded interface.
type fakeClient struct {
	paho.Client

	mu  sync.Mutex
	out []published
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func TestBrokerAddress(t *testing.T) {
	cases := map[string]string{
		"mqtt://broker:1883":        "tcp://broker:1883",
		"tcp://10.0.0.5:1883":       "tcp://10.0.0.5:1883",
		"tls://broker:8883":         "ssl://broker:8883",
		"ws://broker:9001/mqtt":     "ws://broker:9001/mqtt",
		"mqtt://u:p@broker:1883":    "tcp://broker:1883",
		"wss://broker.example/mqtt": "wss://broker.example/mqtt",
	}
	for in, want := range cases {
		got, _, err := BrokerAddress(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
	for _, bad := range []string{"http://broker:80", "broker:1883", "mqtt://"} {
		if _, _, err := BrokerAddress(bad); err == nil {
			t.Fatalf("%s: expected error", bad)
		}
	}
}

func TestPublisher_TopicAndPayload(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "/lab/devices/")

	p.Publish(events.Event{Type: events.DeviceStatus, ID: "6650a1b2c3d4e5f601234567", Status: "offline"})

	if len(fc.out) != 1 {
		t.Fatalf("expected one publish, got %d", len(fc.out))
	}
	msg := fc.out[0]
	if msg.topic != "lab/devices/6650a1b2c3d4e5f601234567/status" {
		t.Fatalf("unexpected topic %q", msg.topic)
	}
	if msg.qos != 0 || msg.retained {
		t.Fatalf("expected qos 0 not retained, got qos=%d retained=%v", msg.qos, msg.retained)
	}
	var ev events.Event
	if err := json.Unmarshal(msg.payload, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.Status != "offline" || ev.At.IsZero() {
		t.Fatalf("unexpected payload %+v", ev)
	}
}

func TestPublisher_DefaultPrefix(t *testing.T) {
	p := newPublisher(&fakeClient{}, "")
	if got := p.Topic(events.Event{Type: events.DeviceCreated, ID: "x"}); got != "netdevices/device/x/created" {
		t.Fatalf("unexpected topic %q", got)
	}
}
