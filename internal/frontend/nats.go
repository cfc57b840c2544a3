package frontend

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/matterbridge-go/matterbridge/internal/logger"
)

// NATSConfig configures the NATS-backed Notifier.
type NATSConfig struct {
	URL      string
	User     string
	Password string
}

const (
	subjectSnackbar  = "matterbridge.snackbar"
	subjectRefresh   = "matterbridge.refresh"
	subjectAttribute = "matterbridge.attribute"
	subjectLog       = "matterbridge.log"
)

// NATSNotifier publishes every message as JSON to a per-kind NATS
// subject, for an out-of-process frontend to subscribe to. Connection
// handling mirrors the event subscriber pattern used elsewhere in this
// codebase: named connection, bounded reconnect, non-fatal connect
// failure.
type NATSNotifier struct {
	conn *nats.Conn
}

// NewNATSNotifier connects to NATS and returns a Notifier. If cfg.URL
// is empty or the connection fails, a disabled notifier is returned
// instead of an error — an unreachable frontend transport must not
// block the core from starting.
func NewNATSNotifier(cfg NATSConfig) (*NATSNotifier, error) {
	l := logger.Frontend()

	if cfg.URL == "" {
		l.Warn().Msg("frontend NATS URL not configured, outbound notifications disabled")
		return &NATSNotifier{}, nil
	}

	opts := []nats.Option{
		nats.Name("matterbridge-frontend"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("frontend NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info().Str("url", nc.ConnectedUrl()).Msg("frontend NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			l.Warn().Err(err).Msg("frontend NATS error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		l.Warn().Err(err).Str("url", cfg.URL).Msg("frontend NATS connect failed, outbound notifications disabled")
		return &NATSNotifier{}, nil
	}

	l.Info().Str("url", conn.ConnectedUrl()).Msg("frontend NATS connected")
	return &NATSNotifier{conn: conn}, nil
}

func (n *NATSNotifier) publish(subject string, v interface{}) {
	if n.conn == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = n.conn.Publish(subject, data)
}

func (n *NATSNotifier) SnackbarMessage(text string, timeoutSec int, severity Severity) {
	n.publish(subjectSnackbar, map[string]interface{}{
		"id":         uuid.NewString(),
		"text":       text,
		"timeoutSec": timeoutSec,
		"severity":   severity,
	})
}

func (n *NATSNotifier) RefreshRequired(scope RefreshScope) {
	n.publish(subjectRefresh, map[string]interface{}{"scope": scope})
}

func (n *NATSNotifier) AttributeChanged(change AttributeChange) {
	n.publish(subjectAttribute, change)
}

func (n *NATSNotifier) Log(line LogLine) {
	n.publish(subjectLog, line)
}

func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	n.conn.Close()
	return nil
}
