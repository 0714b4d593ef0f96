package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/court-rotation/internal/infrastructure/config"
)

const (
	topicPrefix = "courtrotation/event/"

	defaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
	maxReconnectInterval  = 60 * time.Second
	keepAlive             = 30 * time.Second
	disconnectQuiesce     = 250 // milliseconds
)

// ErrConnectionFailed indicates the broker could not be reached.
var ErrConnectionFailed = errors.New("events: MQTT connection failed")

// Logger is the minimal logging interface the notifier needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier publishes rotation lifecycle events over MQTT. It implements
// rotation.Notifier.
//
// Events ride on courtrotation/event/<name> with a JSON payload. Delivery
// is fire-and-forget: automation never blocks on a slow broker, and a
// failed publish is only logged.
//
// Thread safety: Publish is safe for concurrent use.
type Notifier struct {
	client pahomqtt.Client
	qos    byte

	logger   Logger
	loggerMu sync.RWMutex
}

// Connect establishes a connection to the MQTT broker and returns a
// ready notifier. Auto-reconnect with backoff is enabled; events
// published while disconnected are dropped.
func Connect(cfg config.MQTTConfig) (*Notifier, error) {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.Broker.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(defaultConnectTimeout).
		SetOrderMatters(false)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	n := &Notifier{
		client: pahomqtt.NewClient(opts),
		qos:    byte(cfg.QoS),
		logger: noopLogger{},
	}

	token := n.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return n, nil
}

// SetLogger attaches a logger for publish failure reporting.
func (n *Notifier) SetLogger(logger Logger) {
	n.loggerMu.Lock()
	defer n.loggerMu.Unlock()
	if logger != nil {
		n.logger = logger
	}
}

func (n *Notifier) log() Logger {
	n.loggerMu.RLock()
	defer n.loggerMu.RUnlock()
	return n.logger
}

// Publish broadcasts one event. The payload is JSON-encoded and a
// timestamp is stamped in if the caller did not provide one.
func (n *Notifier) Publish(event string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log().Error("failed to encode event payload", "event", event, "error", err)
		return
	}

	token := n.client.Publish(topicPrefix+event, n.qos, false, body)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			n.log().Warn("event publish timed out", "event", event)
			return
		}
		if err := token.Error(); err != nil {
			n.log().Warn("event publish failed", "event", event, "error", err)
		}
	}()
}

// Close disconnects from the broker, allowing in-flight publishes a
// short quiesce period.
func (n *Notifier) Close() {
	n.client.Disconnect(disconnectQuiesce)
}
