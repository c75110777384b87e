// Package mqtt publishes device events to an MQTT broker.
package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kavia-common/network-device-manager/internal/events"
)

const DefaultTopicPrefix = "netdevices/device"

// Publisher sends each event to <prefix>/<device id>/<event suffix> at QoS 0.
type Publisher struct {
	cli     paho.Client
	prefix  string
	timeout time.Duration
}

// BrokerAddress maps mqtt://, tcp://, ssl://, tls://, ws:// and wss:// URLs
// to the form paho expects.
func BrokerAddress(brokerURL string) (string, *url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(brokerURL))
	if err != nil {
		return "", nil, fmt.Errorf("parse broker url: %w", err)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("broker url %q has no host", brokerURL)
	}
	switch u.Scheme {
	case "mqtt", "tcp":
		return "tcp://" + u.Host, u, nil
	case "ssl", "tls", "mqtts":
		return "ssl://" + u.Host, u, nil
	case "ws", "wss":
		return u.Scheme + "://" + u.Host + u.Path, u, nil
	default:
		return "", nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

// NewPublisher connects to brokerURL. Reconnects are left to paho.
func NewPublisher(brokerURL, topicPrefix string) (*Publisher, error) {
	server, u, err := BrokerAddress(brokerURL)
	if err != nil {
		return nil, err
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID("device-manager-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(paho.Client) { slog.Info("mqtt connected", "broker", server) }
	opts.OnConnectionLost = func(_ paho.Client, err error) { slog.Error("mqtt connection lost", "error", err) }
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if strings.HasPrefix(server, "ssl://") || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	cli := paho.NewClient(opts)
	t := cli.Connect()
	if !t.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", server)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", server, err)
	}
	return newPublisher(cli, topicPrefix), nil
}

func newPublisher(cli paho.Client, topicPrefix string) *Publisher {
	topicPrefix = strings.Trim(strings.TrimSpace(topicPrefix), "/")
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &Publisher{cli: cli, prefix: topicPrefix, timeout: 2 * time.Second}
}

// Topic returns the topic an event is published on.
func (p *Publisher) Topic(ev events.Event) string {
	suffix := strings.TrimPrefix(ev.Type, "device.")
	return p.prefix + "/" + ev.ID + "/" + suffix
}

func (p *Publisher) Publish(ev events.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	topic := p.Topic(ev)
	t := p.cli.Publish(topic, 0, false, b)
	go func() {
		if !t.WaitTimeout(p.timeout) {
			slog.Warn("mqtt publish timed out", "topic", topic)
			return
		}
		if err := t.Error(); err != nil {
			slog.Error("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

func (p *Publisher) Close() {
	if p == nil || p.cli == nil {
		return
	}
	p.cli.Disconnect(250)
}
