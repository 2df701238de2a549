// Package config loads client and actor settings.
//
// Values start from Default, are overlaid by an optional YAML file and then
// by AOCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/rpc"
	rtc "github.com/rudransh-shrivastava/ao-chat/internal/transport/webrtc"
	"gopkg.in/yaml.v3"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

const defaultProcess = "ovis--ukeLTI6HduncpzE4evvwebqmKvxzR6XdC9x6s"

// Endpoints are the network units and registry process for one environment.
type Endpoints struct {
	MUURL   string `yaml:"mu_url" env:"MU_URL"`
	CUURL   string `yaml:"cu_url" env:"CU_URL"`
	Process string `yaml:"process" env:"PROCESS"`
}

var defaultEndpoints = map[Environment]Endpoints{
	Development: {
		MUURL:   "https://mu.ao-testnet.xyz",
		CUURL:   "https://cu.ao-testnet.xyz",
		Process: defaultProcess,
	},
	Production: {
		MUURL:   "https://mu.ao-testnet.xyz",
		CUURL:   "https://cu.ao-testnet.xyz",
		Process: defaultProcess,
	},
}

type Config struct {
	Environment Environment `yaml:"environment" env:"AOCHAT_ENV"`
	LogLevel    string      `yaml:"log_level" env:"AOCHAT_LOG_LEVEL"`
	KeyFile     string      `yaml:"key_file" env:"AOCHAT_KEY_FILE"`
	DBPath      string      `yaml:"db_path" env:"AOCHAT_DB_PATH"`
	// SharedKey is the base64 conversation key used to seal chat messages.
	SharedKey string `yaml:"shared_key" env:"AOCHAT_SHARED_KEY"`

	Endpoints Endpoints       `yaml:"endpoints" envPrefix:"AOCHAT_"`
	RPC       RPCConfig       `yaml:"rpc" envPrefix:"AOCHAT_RPC_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"AOCHAT_EVENTS_"`
	P2P       P2PConfig       `yaml:"p2p" envPrefix:"AOCHAT_P2P_"`
	Actor     ActorConfig     `yaml:"actor" envPrefix:"AOCHAT_ACTOR_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"AOCHAT_OTEL_"`
}

type RPCConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay    time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	ReplyTimeout time.Duration `yaml:"reply_timeout" env:"REPLY_TIMEOUT"`
	ReplyActions []string      `yaml:"reply_actions" env:"REPLY_ACTIONS" envSeparator:","`
}

type EventsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	PageSize     int           `yaml:"page_size" env:"PAGE_SIZE"`
	CacheSize    int           `yaml:"cache_size" env:"CACHE_SIZE"`
	// SeenRetention is how long dispatched event ids are remembered on disk.
	SeenRetention time.Duration `yaml:"seen_retention" env:"SEEN_RETENTION"`
}

type P2PConfig struct {
	ListenAddrs []string `yaml:"listen_addrs" env:"LISTEN_ADDRS" envSeparator:","`
	// Peers maps chat addresses to libp2p /p2p multiaddrs.
	Peers           map[string]string `yaml:"peers" env:"PEERS" envSeparator:"," envKeyValSeparator:"="`
	STUNServers     []string          `yaml:"stun_servers" env:"STUN_SERVERS" envSeparator:","`
	GatherTimeout   time.Duration     `yaml:"gather_timeout" env:"GATHER_TIMEOUT"`
	SignalTimeout   time.Duration     `yaml:"signal_timeout" env:"SIGNAL_TIMEOUT"`
	SignalInterval  time.Duration     `yaml:"signal_interval" env:"SIGNAL_INTERVAL"`
	Attempts        int               `yaml:"attempts" env:"ATTEMPTS"`
	BaseDelay       time.Duration     `yaml:"base_delay" env:"BASE_DELAY"`
	IncludeLoopback bool              `yaml:"include_loopback" env:"INCLUDE_LOOPBACK"`
}

type ActorConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Registry string `yaml:"registry" env:"REGISTRY"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
}

// Default returns the development configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".ao-chat")
	rpcDefaults := rpc.DefaultConfig()
	rtcDefaults := rtc.DefaultConfig()

	replyActions := make([]string, 0, len(protocol.ReplyActions))
	for _, a := range protocol.ReplyActions {
		replyActions = append(replyActions, a.String())
	}

	return &Config{
		Environment: Development,
		LogLevel:    "info",
		KeyFile:     filepath.Join(root, "wallet.json"),
		DBPath:      filepath.Join(root, "state.db"),
		Endpoints:   defaultEndpoints[Development],
		RPC: RPCConfig{
			MaxRetries:   rpcDefaults.MaxRetries,
			BaseDelay:    rpcDefaults.BaseDelay,
			ReplyTimeout: rpcDefaults.ReplyTimeout,
			ReplyActions: replyActions,
		},
		Events: EventsConfig{
			PollInterval:  2 * time.Second,
			PageSize:      100,
			CacheSize:     4096,
			SeenRetention: 24 * time.Hour,
		},
		P2P: P2PConfig{
			ListenAddrs:    []string{"/ip4/0.0.0.0/tcp/0"},
			STUNServers:    rtcDefaults.STUNServers,
			GatherTimeout:  rtcDefaults.GatherTimeout,
			SignalTimeout:  30 * time.Second,
			SignalInterval: time.Second,
			Attempts:       3,
			BaseDelay:      time.Second,
		},
		Actor: ActorConfig{
			Addr:     "127.0.0.1:8734",
			Registry: defaultProcess,
		},
	}
}

// Load reads path, when not empty, over the defaults and applies the
// environment. Endpoints left unset follow the selected environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() {
	defaults, ok := defaultEndpoints[c.Environment]
	if !ok {
		return
	}
	if c.Endpoints.MUURL == "" {
		c.Endpoints.MUURL = defaults.MUURL
	}
	if c.Endpoints.CUURL == "" {
		c.Endpoints.CUURL = defaults.CUURL
	}
	if c.Endpoints.Process == "" {
		c.Endpoints.Process = defaults.Process
	}
}

func (c *Config) Validate() error {
	var errs []error
	if _, ok := defaultEndpoints[c.Environment]; !ok {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if c.Endpoints.MUURL == "" || c.Endpoints.CUURL == "" {
		errs = append(errs, errors.New("mu and cu urls are required"))
	}
	if c.Events.PollInterval <= 0 {
		errs = append(errs, errors.New("events poll interval must be positive"))
	}
	if c.P2P.Attempts < 1 {
		errs = append(errs, errors.New("p2p attempts must be at least 1"))
	}
	if err := c.RPCConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RPCConfig converts the rpc section for rpc.New.
func (c *Config) RPCConfig() rpc.Config {
	actions := make([]protocol.Action, 0, len(c.RPC.ReplyActions))
	for _, a := range c.RPC.ReplyActions {
		actions = append(actions, protocol.Action(a))
	}
	return rpc.Config{
		Process:      c.Endpoints.Process,
		MaxRetries:   c.RPC.MaxRetries,
		BaseDelay:    c.RPC.BaseDelay,
		ReplyTimeout: c.RPC.ReplyTimeout,
		ReplyActions: actions,
	}
}

func (c *Config) RTCConfig() rtc.Config {
	return rtc.Config{
		STUNServers:     c.P2P.STUNServers,
		GatherTimeout:   c.P2P.GatherTimeout,
		IncludeLoopback: c.P2P.IncludeLoopback,
	}
}
