package client

import (
	"os"
	"time"
)

// DefaultHubURL is used when neither the environment nor the settings file
// names a hub.
const DefaultHubURL = "ws://localhost:7600/hub"

// EnvHubURL overrides the hub named in the settings file.
const EnvHubURL = "RQ_HUB_URL"

// Config holds client connection settings.
type Config struct {
	HubURL          string        // takes precedence over the settings file when set
	DialTimeout     time.Duration
	ReconnectDelay  time.Duration // wait before redialing a lost connection
	RefreshInterval time.Duration // periodic list_queues; 0 disables
	PingInterval    time.Duration // websocket keep-alive; 0 disables
	ReadTimeout     time.Duration // silence after which the connection is dropped; 0 disables
	SendQueueSize   int
}

// DefaultConfig returns a Config with sensible defaults. HubURL is taken
// from the environment, if set.
func DefaultConfig() Config {
	return Config{
		HubURL:          os.Getenv(EnvHubURL),
		DialTimeout:     10 * time.Second,
		ReconnectDelay:  3 * time.Second,
		RefreshInterval: 5 * time.Second,
		PingInterval:    5 * time.Second,
		ReadTimeout:     10 * time.Second,
		SendQueueSize:   64,
	}
}
