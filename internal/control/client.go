package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"sxvrs/internal/config"
	"sxvrs/internal/logging"
	"sxvrs/internal/recorder"
	"sxvrs/internal/services"
)

// connectAttemptTimeout bounds one broker connection attempt.
const connectAttemptTimeout = 5 * time.Second

// Handler receives every message on the subscription filter.
type Handler func(ctx context.Context, topic string, payload []byte)

// Client is the daemon's single broker connection.
type Client struct {
	client         mqtt.Client
	topics         Topics
	broker         string
	qos            byte
	retry          time.Duration
	publishTimeout time.Duration
	logger         *slog.Logger

	mu      sync.RWMutex
	handler Handler
	ctx     context.Context
}

// NewClient configures, but does not connect, the broker client. The client
// id gets a random suffix so a restarted daemon never collides with its
// previous session.
func NewClient(cfg *config.Config, topics Topics, logger *slog.Logger) *Client {
	c := &Client{
		topics:         topics,
		broker:         net.JoinHostPort(cfg.MQTT.Host, strconv.Itoa(cfg.MQTT.Port)),
		qos:            byte(cfg.MQTT.QoS),
		retry:          time.Duration(cfg.MQTT.ConnectRetrySeconds) * time.Second,
		publishTimeout: time.Duration(cfg.MQTT.PublishTimeoutSeconds) * time.Second,
		logger:         logging.NewComponentLogger(logger, "mqtt"),
		ctx:            context.Background(),
	}
	if c.retry <= 0 {
		c.retry = time.Second
	}
	if c.publishTimeout <= 0 {
		c.publishTimeout = 2 * time.Second
	}

	clientID := cfg.MQTT.ClientID + "_" + uuid.NewString()[:8]
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + c.broker)
	opts.SetClientID(clientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetKeepAlive(time.Duration(cfg.MQTT.Keepalive) * time.Second)
	opts.SetConnectTimeout(connectAttemptTimeout)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.WarnWithContext(c.logger, "broker connection lost; reconnecting", "mqtt_connection_lost",
			logging.String("broker", c.broker),
			logging.Error(err),
			logging.String(logging.FieldImpact, "control commands are not received until the broker returns"),
		)
	})
	c.client = mqtt.NewClient(opts)
	c.logger.Debug("mqtt client configured",
		logging.String("broker", c.broker),
		logging.String("client_id", clientID),
	)
	return c
}

// SetHandler installs the message handler. Call before Connect.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect blocks until the broker accepts the connection, retrying at a fixed
// interval. It returns early only when ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	attempt := 0
	for {
		attempt++
		token := c.client.Connect()
		var err error
		switch {
		case !token.WaitTimeout(connectAttemptTimeout + time.Second):
			err = errors.New("connection attempt timed out")
		default:
			err = token.Error()
		}
		if err == nil {
			c.logger.Info("connected to broker",
				logging.String("broker", c.broker),
				logging.Int("attempts", attempt),
			)
			return nil
		}
		if attempt == 1 || attempt%30 == 0 {
			logging.WarnWithContext(c.logger, "broker unavailable; retrying", "mqtt_connect_retry",
				logging.String("broker", c.broker),
				logging.Int("attempt", attempt),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check mqtt.host and mqtt.port"),
			)
		}
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrUnavailable, "mqtt", "connect", "Broker unreachable at "+c.broker, ctx.Err())
		case <-time.After(c.retry):
		}
	}
}

// onConnect runs for the initial connection and every automatic reconnect.
func (c *Client) onConnect(client mqtt.Client) {
	filter := c.topics.Filter()
	token := client.Subscribe(filter, c.qos, c.receive)
	if !token.WaitTimeout(c.publishTimeout) || token.Error() != nil {
		logging.ErrorWithContext(c.logger, "subscribe failed", "mqtt_subscribe_failed",
			logging.String("topic", filter),
			logging.Error(token.Error()),
			logging.String(logging.FieldImpact, "control commands are ignored until the next reconnect"),
		)
		return
	}
	c.logger.Info("subscribed", logging.String("topic", filter))
}

func (c *Client) receive(_ mqtt.Client, msg mqtt.Message) {
	c.mu.RLock()
	handler := c.handler
	ctx := c.ctx
	c.mu.RUnlock()
	if handler == nil {
		return
	}
	c.logger.Debug("message received",
		logging.String("topic", msg.Topic()),
		logging.Int("bytes", len(msg.Payload())),
	)
	handler(ctx, msg.Topic(), msg.Payload())
}

// Send publishes payload, waiting at most the publish timeout.
func (c *Client) Send(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return services.Wrap(services.ErrUnavailable, "mqtt", "publish", "Not connected to "+c.broker, nil)
	}
	token := c.client.Publish(topic, c.qos, false, payload)
	timer := time.NewTimer(c.publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	case <-timer.C:
		return services.Wrap(services.ErrTimeout, "mqtt", "publish", "Publish to "+topic+" timed out", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishStatus implements recorder.Publisher.
func (c *Client) PublishStatus(ctx context.Context, camera string, msg recorder.StatusMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return c.Send(ctx, c.topics.Publish(camera), payload)
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Disconnect closes the connection after waiting up to quiesce for in-flight work.
func (c *Client) Disconnect(quiesce time.Duration) {
	wasOpen := c.client.IsConnectionOpen()
	// Also stops paho's reconnect loop, which runs while IsConnected is false.
	c.client.Disconnect(uint(quiesce / time.Millisecond))
	if wasOpen {
		c.logger.Info("disconnected from broker")
	}
}
