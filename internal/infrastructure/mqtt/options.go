package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	keepAlive        = 60 * time.Second

	disconnectQuiesceMillis = 1000

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// Presence states published on the status topic.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

// clientOptions translates cfg into paho options. The Last Will marks the
// core offline on topics' status topic if it vanishes without disconnecting.
func clientOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	addr := net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))

	opts := pahomqtt.NewClientOptions().
		AddBroker(scheme + "://" + addr).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectRetryInterval(cfg.Reconnect.InitialDelay).
		SetMaxReconnectInterval(cfg.Reconnect.MaxDelay).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(topics.SystemStatus(), string(statusMessage(cfg.Broker.ClientID, presenceOffline, "unexpected_disconnect")), 1, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// presence is the retained message on the status topic.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusMessage(clientID, state, reason string) []byte {
	b, _ := json.Marshal(presence{
		Status:    state,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}
