// Package bus provides the optional message bus for mid-execution agent
// communication: an embedded NATS server plus a thin client wrapper and
// the topic naming scheme.
package bus

import (
	"fmt"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// Config holds the embedded server's settings.
type Config struct {
	// Port is the listen port; 0 picks a random free port.
	Port int
	// DataDir is where JetStream state is stored.
	DataDir string
}

// Bus is an embedded NATS server owned by this process.
type Bus struct {
	server *natsserver.Server
	cfg    Config
}

// New starts an embedded NATS server and waits until it accepts
// connections.
func New(cfg Config) (*Bus, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create nats data dir: %w", err)
	}

	opts := &natsserver.Options{
		Port:      cfg.Port,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  cfg.DataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Bus{server: ns, cfg: cfg}, nil
}

// ClientURL returns the URL local clients should connect to.
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Port returns the configured listen port.
func (b *Bus) Port() int {
	return b.cfg.Port
}

// Close shuts the server down and waits for it to finish.
func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
