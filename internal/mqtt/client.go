// client.go: MQTT client implementation backed by eclipse/paho.mqtt.golang
package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
	"github.com/Tenemo/bob/internal/observability/metrics"
)

// Service implements Client and audiocore.SessionObserver.
type Service struct {
	config          Config
	player          Player
	metrics         *metrics.MQTTMetrics
	logger          *slog.Logger
	newClient       func(*paho.ClientOptions) paho.Client
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
}

var (
	_ Client                    = (*Service)(nil)
	_ audiocore.SessionObserver = (*Service)(nil)
)

// NewClient creates an unconnected MQTT service. m may be nil.
func NewClient(config Config, player Player, m *metrics.MQTTMetrics) *Service {
	defaults := DefaultConfig()
	if config.Topic == "" {
		config.Topic = defaults.Topic
	}
	config.Topic = strings.TrimSuffix(config.Topic, "/")
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.DisconnectTimeout <= 0 {
		config.DisconnectTimeout = defaults.DisconnectTimeout
	}

	return &Service{
		config:    config,
		player:    player,
		metrics:   m,
		logger:    logging.ForService("mqtt"),
		newClient: paho.NewClient,
	}
}

// Connect resolves the broker host, connects and subscribes to the control topics.
// Subscriptions are renewed by the on-connect handler after every reconnect.
func (c *Service) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", c.config.Broker).
			Build()
	}

	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("broker_host", host).
				Context("operation", "resolve_broker").
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	// handlers call back into the controller and publish; they must not block the router
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		if c.metrics != nil {
			c.metrics.RecordReconnect()
		}
	})

	c.internalClient = c.newClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return errors.Newf("connection timeout").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("broker", c.config.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		c.countError(metrics.MQTTOpConnect)
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *Service) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *Service) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
		c.logger.Info("disconnected from MQTT broker", "broker", c.config.Broker)
	}
}

// PublishStatus publishes the current playback status to <topic>/status.
func (c *Service) PublishStatus(ctx context.Context) error {
	return c.publish(ctx, EventRequested, NewStatusDTO(c.player.Status(), EventRequested))
}

// SessionStarted implements audiocore.SessionObserver
func (c *Service) SessionStarted(audiocore.SessionInfo) {
	c.publishStatusAsync(NewStatusDTO(c.player.Status(), EventStarted))
}

// SessionEnded implements audiocore.SessionObserver
func (c *Service) SessionEnded(audiocore.SessionInfo) {
	c.publishStatusAsync(NewStatusDTO(c.player.Status(), EventEnded))
}

// publishStatusAsync keeps observers from blocking controller callers on the broker
func (c *Service) publishStatusAsync(status StatusDTO) {
	if !c.IsConnected() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
		defer cancel()
		if err := c.publish(ctx, status.Event, status); err != nil {
			c.logger.Warn("failed to publish status", "event", status.Event, "error", err)
		}
	}()
}

// publish sends a status message to <topic>/status; event labels the metrics
func (c *Service) publish(ctx context.Context, event string, v any) error {
	topic := c.config.topic(TopicStatus)
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Context("operation", "marshal").
			Build()
	}

	c.mu.Lock()
	internal := c.internalClient
	c.mu.Unlock()
	if internal == nil || !internal.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	token := internal.Publish(topic, 0, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		c.countError(metrics.MQTTOpPublish)
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		c.countError(metrics.MQTTOpPublish)
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if c.metrics != nil {
		c.metrics.RecordStatusPublished(event, time.Since(start))
	}
	c.logger.Debug("published", "topic", topic, "bytes", len(payload))
	return nil
}

func (c *Service) onConnect(pc paho.Client) {
	c.logger.Info("connected to MQTT broker", "broker", c.config.Broker)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}

	for _, t := range []struct {
		suffix  string
		handler paho.MessageHandler
	}{
		{TopicPlay, c.onPlay},
		{TopicStop, c.onStop},
	} {
		topic := c.config.topic(t.suffix)
		token := pc.Subscribe(topic, 1, t.handler)
		if !token.WaitTimeout(c.config.ConnectTimeout) || token.Error() != nil {
			c.countError(metrics.MQTTOpSubscribe)
			c.logger.Error("failed to subscribe", "topic", topic, "error", token.Error())
		}
	}
}

func (c *Service) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("connection to MQTT broker lost", "broker", c.config.Broker, "error", err)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
	}
	c.countError(metrics.MQTTOpLost)
}

func (c *Service) onPlay(_ paho.Client, msg paho.Message) {
	c.handleCommand(TopicPlay, msg.Payload())
}

func (c *Service) onStop(_ paho.Client, msg paho.Message) {
	c.handleCommand(TopicStop, msg.Payload())
}

// handleCommand executes one control message. A failure is logged and published
// as an EventFailed status carrying the command and error.
func (c *Service) handleCommand(command string, payload []byte) {
	var err error
	switch command {
	case TopicPlay:
		var cmd PlayCommand
		if err = json.Unmarshal(payload, &cmd); err == nil && cmd.Path == "" {
			err = audiocore.ErrInvalidRequest
		}
		if err == nil {
			err = c.player.StartFile(cmd.Path)
		}
	case TopicStop:
		c.player.Stop()
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		c.logger.Warn("control command failed", "command", command, "error", err)

		status := NewStatusDTO(c.player.Status(), EventFailed)
		status.Command = command
		status.Error = err.Error()
		c.publishStatusAsync(status)
	}
	if c.metrics != nil {
		c.metrics.RecordCommand(command, outcome)
	}
}

func (c *Service) countError(operation string) {
	if c.metrics != nil {
		c.metrics.RecordError(operation)
	}
}

// waitToken waits for token completion, the timeout or ctx, whichever comes first
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run connects and keeps the client up until ctx is cancelled
func Run(ctx context.Context, c Client) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	c.Disconnect()
	return nil
}
