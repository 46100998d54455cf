package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full node configuration.
type Config struct {
	Node      NodeConfig      `koanf:"node"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Exchange  ExchangeConfig  `koanf:"exchange"`
	Registry  RegistryConfig  `koanf:"registry"`
	Services  ServicesConfig  `koanf:"services"`
	HTTP      HTTPConfig      `koanf:"http"`
}

type NodeConfig struct {
	// DataDir holds identity.json and the fragment archive.
	DataDir string `koanf:"data_dir"`
	// Port is the federation datagram port.
	Port int `koanf:"port"`
	// PrivacyLevel is applied to newly built fragments.
	PrivacyLevel string `koanf:"privacy_level"`
	// Capabilities advertised in discovery responses.
	Capabilities []string `koanf:"capabilities"`
	// DocumentsFile is a JSON file of ingested documents (the ingestion
	// pipeline itself lives outside this process).
	DocumentsFile string `koanf:"documents_file"`
}

type DiscoveryConfig struct {
	// Method selects the discovery mode. Only local_broadcast is
	// implemented; dht and bootstrap are reserved.
	Method string `koanf:"method"`
	// ListenWindow bounds how long a discovery round collects responses.
	ListenWindow time.Duration `koanf:"listen_window"`
}

type ExchangeConfig struct {
	// RequestTimeout caps how long an insight request may wait.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type RegistryConfig struct {
	// EvictAfter removes peers not seen within this window. Zero disables
	// eviction.
	EvictAfter time.Duration `koanf:"evict_after"`
	// SweepInterval is how often the eviction sweep runs.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type ServicesConfig struct {
	// OpenAIAPIKey enables the embedding and synthesis services. Empty
	// means both are unavailable and the node degrades accordingly.
	OpenAIAPIKey   string `koanf:"openai_api_key"`
	EmbeddingModel string `koanf:"embedding_model"`
	SynthesisModel string `koanf:"synthesis_model"`
}

type HTTPConfig struct {
	// Address for the stats/metrics surface. Empty disables the server.
	Address string `koanf:"address"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			DataDir:      "./data",
			Port:         8447,
			PrivacyLevel: "public",
			Capabilities: []string{"insight_exchange", "semantic_matching"},
		},
		Discovery: DiscoveryConfig{
			Method:       "local_broadcast",
			ListenWindow: 2 * time.Second,
		},
		Exchange: ExchangeConfig{
			RequestTimeout: 10 * time.Second,
		},
		Registry: RegistryConfig{
			EvictAfter:    24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Services: ServicesConfig{
			EmbeddingModel: "text-embedding-3-small",
			SynthesisModel: "gpt-4o-mini",
		},
		HTTP: HTTPConfig{
			Address: ":8448",
		},
	}
}

// Load reads configuration from the given YAML file (if it exists), then
// overlays WEAVE_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// WEAVE_NODE__PORT -> node.port. Double underscore separates levels so
	// that key names may themselves contain underscores (data_dir).
	if err := k.Load(env.Provider("WEAVE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "WEAVE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}
