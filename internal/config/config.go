// Package config loads bgpview-replicator's configuration from a YAML file
// overlaid with environment variables, the way the rest of this codebase's
// ancestry does it.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Cadence  CadenceConfig  `koanf:"cadence"`
	Registry RegistryConfig `koanf:"registry"`
	BMP      BMPConfig      `koanf:"bmp"`
}

type ServiceConfig struct {
	Identity               string `koanf:"identity"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// KafkaConfig names the four partitioned streams of spec.md §2: meta,
// peers, pfxs, and the out-of-band members heartbeat.
type KafkaConfig struct {
	Brokers         []string   `koanf:"brokers"`
	ClientID        string     `koanf:"client_id"`
	TLS             TLSConfig  `koanf:"tls"`
	SASL            SASLConfig `koanf:"sasl"`
	MetaTopic       string     `koanf:"meta_topic"`
	PeersTopic      string     `koanf:"peers_topic"`
	PfxsTopic       string     `koanf:"pfxs_topic"`
	MembersTopic    string     `koanf:"members_topic"`
	RawTopic        string     `koanf:"raw_topic"`
	Partition       int32      `koanf:"partition"`
	FetchMaxBytes   int32      `koanf:"fetch_max_bytes"`
	CompressionZstd bool       `koanf:"compression_zstd"`
}

// BMPConfig enables the live BMP/BGP ingest adapter (SPEC_FULL.md §9):
// when enabled, the producer builds its view by consuming OpenBMP-framed
// BMP messages off kafka.raw_topic (the way goBMP's Kafka producer feeds
// the teacher's ingestion pipeline) instead of relying solely on an
// externally-populated view.
type BMPConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Collector       string `koanf:"collector"`
	MaxPayloadBytes int    `koanf:"max_payload_bytes"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// CadenceConfig configures the sync-cadence controller (spec.md §4.6) and
// the publisher's outbound buffering and heartbeat timers.
type CadenceConfig struct {
	MaxDiffs             int `koanf:"max_diffs"`
	OutboundBufferBytes  int `koanf:"outbound_buffer_bytes"`
	HeartbeatIntervalSec int `koanf:"heartbeat_interval_seconds"`
}

// RegistryConfig is the optional Postgres-backed members registry
// (SPEC_FULL.md §9): a side feature that records producer heartbeats for
// discovery, not on the hot path of the codec itself.
type RegistryConfig struct {
	Enabled          bool   `koanf:"enabled"`
	DSN              string `koanf:"dsn"`
	MaxConns         int32  `koanf:"max_conns"`
	MinConns         int32  `koanf:"min_conns"`
	RetentionSeconds int    `koanf:"retention_seconds"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BGPVIEW_REPLICATOR_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("BGPVIEW_REPLICATOR_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPVIEW_REPLICATOR_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			ClientID:      "bgpview-replicator",
			MetaTopic:     "bgpview-meta",
			PeersTopic:    "bgpview-peers",
			PfxsTopic:     "bgpview-pfxs",
			MembersTopic:  "bgpview-members",
			FetchMaxBytes: 52428800,
		},
		Cadence: CadenceConfig{
			MaxDiffs:             10,
			OutboundBufferBytes:  32 * 1024,
			HeartbeatIntervalSec: 3600,
		},
		Registry: RegistryConfig{
			MaxConns:         10,
			MinConns:         1,
			RetentionSeconds: 3 * 3600,
		},
		BMP: BMPConfig{
			Collector:       "bgpview-replicator",
			MaxPayloadBytes: 16 * 1024 * 1024,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Service.Identity == "" {
		return fmt.Errorf("config: service.identity is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required")
	}
	if c.Kafka.MetaTopic == "" || c.Kafka.PeersTopic == "" || c.Kafka.PfxsTopic == "" {
		return fmt.Errorf("config: kafka.meta_topic, kafka.peers_topic, and kafka.pfxs_topic are all required")
	}
	if c.Kafka.FetchMaxBytes <= 0 {
		return fmt.Errorf("config: kafka.fetch_max_bytes must be > 0 (got %d)", c.Kafka.FetchMaxBytes)
	}
	if c.Cadence.MaxDiffs < 0 {
		return fmt.Errorf("config: cadence.max_diffs must be >= 0 (got %d)", c.Cadence.MaxDiffs)
	}
	if c.Cadence.OutboundBufferBytes <= 0 {
		return fmt.Errorf("config: cadence.outbound_buffer_bytes must be > 0 (got %d)", c.Cadence.OutboundBufferBytes)
	}
	if c.Cadence.HeartbeatIntervalSec <= 0 {
		return fmt.Errorf("config: cadence.heartbeat_interval_seconds must be > 0 (got %d)", c.Cadence.HeartbeatIntervalSec)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Registry.Enabled {
		if c.Registry.DSN == "" {
			return fmt.Errorf("config: registry.dsn is required when registry.enabled is true")
		}
		if c.Registry.MaxConns <= 0 {
			return fmt.Errorf("config: registry.max_conns must be > 0 (got %d)", c.Registry.MaxConns)
		}
		if c.Registry.MinConns < 0 {
			return fmt.Errorf("config: registry.min_conns must be >= 0 (got %d)", c.Registry.MinConns)
		}
		if c.Registry.RetentionSeconds <= 0 {
			return fmt.Errorf("config: registry.retention_seconds must be > 0 (got %d)", c.Registry.RetentionSeconds)
		}
	}
	if c.BMP.Enabled {
		if c.Kafka.RawTopic == "" {
			return fmt.Errorf("config: kafka.raw_topic is required when bmp.enabled is true")
		}
		if c.BMP.Collector == "" {
			return fmt.Errorf("config: bmp.collector is required when bmp.enabled is true")
		}
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
