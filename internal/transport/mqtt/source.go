// Package mqtt subscribes to the motion capture feed on an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultPort           = 1880
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultClientID       = "mocap-flight"

	disconnectQuiesce = 250 // milliseconds
)

// ErrConnectTimeout is returned when the broker does not accept the connection in time
var ErrConnectTimeout = errors.New("timed out connecting to broker")

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(*Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("broker", s.BrokerURL()))
	}
}

// WithClientID sets the MQTT client identifier
func WithClientID(id string) func(*Source) {
	return func(s *Source) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithKeepAlive sets the keepalive period
func WithKeepAlive(d time.Duration) func(*Source) {
	return func(s *Source) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithQoS sets the subscription quality of service
func WithQoS(qos byte) func(*Source) {
	return func(s *Source) {
		s.qos = qos
	}
}

// WithConnectTimeout bounds the initial connection attempt
func WithConnectTimeout(d time.Duration) func(*Source) {
	return func(s *Source) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// Source delivers the payloads published on a topic. The client reconnects
// automatically and resubscribes after every reconnect.
type Source struct {
	host string
	port int

	clientID       string
	keepAlive      time.Duration
	connectTimeout time.Duration
	qos            byte

	logger *slog.Logger
}

// NewSource creates a source for the broker at host:port.
func NewSource(host string, port int, options ...func(*Source)) *Source {
	if port == 0 {
		port = DefaultPort
	}

	s := Source{
		host:           host,
		port:           port,
		clientID:       DefaultClientID,
		keepAlive:      DefaultKeepAlive,
		connectTimeout: DefaultConnectTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// BrokerURL returns the broker address in the form expected by the client.
func (s *Source) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

func (s *Source) clientOptions(topic string, handler func([]byte), subscribed chan<- error) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(s.BrokerURL()).
		SetClientID(s.clientID).
		SetKeepAlive(s.keepAlive).
		SetConnectTimeout(s.connectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	opts.SetOnConnectHandler(func(c paho.Client) {
		token := c.Subscribe(topic, s.qos, func(_ paho.Client, m paho.Message) {
			handler(m.Payload())
		})

		go func() {
			token.Wait()

			err := token.Error()
			if err != nil {
				s.logger.Error(fmt.Sprintf("subscribing to %s: %s", topic, err.Error()))
			} else {
				s.logger.Info("subscribed", slog.String("topic", topic))
			}

			select {
			case subscribed <- err:
			default:
			}
		}()
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.logger.Warn(fmt.Sprintf("connection lost: %s", err.Error()))
	})

	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		s.logger.Info("reconnecting")
	})

	return opts
}

// Subscribe connects to the broker and passes every payload published on topic
// to handler, one at a time and in arrival order. It blocks until ctx is done,
// then disconnects. Failing to connect or subscribe is returned as an error.
func (s *Source) Subscribe(ctx context.Context, topic string, handler func([]byte)) error {
	subscribed := make(chan error, 1)
	client := paho.NewClient(s.clientOptions(topic, handler, subscribed))

	token := client.Connect()
	if !token.WaitTimeout(s.connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("%s: %w", s.BrokerURL(), ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to %s: %w", s.BrokerURL(), err)
	}
	defer client.Disconnect(disconnectQuiesce)

	s.logger.Info("connected", slog.String("clientID", s.clientID))

	select {
	case err := <-subscribed:
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	case <-ctx.Done():
		return nil
	}

	<-ctx.Done()
	return nil
}
