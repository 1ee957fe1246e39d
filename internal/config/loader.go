package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const configType = "yaml"

// envPrefix is the environment variable prefix for scenario overrides, so
// COALSIM_SEED or COALSIM_STORE_KIND replace values from the file.
const envPrefix = "COALSIM"

const envKeySeparator = "_"

const (
	DefaultReplicates     = 1
	DefaultSequenceLength = 1.0
	DefaultStoreKind      = "memory"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Load reads the scenario at path, applies environment overrides and
// validates the result.
func Load(path string) (Scenario, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := v.Unmarshal(&s); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("validate scenario: %w", err)
	}
	return s, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("seed", 0)
	v.SetDefault("replicates", DefaultReplicates)
	v.SetDefault("workers", 0)
	v.SetDefault("ploidy", 0)
	v.SetDefault("start_time", 0.0)
	v.SetDefault("end_time", 0.0)
	v.SetDefault("max_events", 0)
	v.SetDefault("record_migrations", false)
	v.SetDefault("record_full_arg", false)
	v.SetDefault("output_dir", "")

	v.SetDefault("recombination.sequence_length", 0.0)
	v.SetDefault("recombination.rate", 0.0)
	v.SetDefault("recombination.discrete", false)
	v.SetDefault("gene_conversion.rate", 0.0)
	v.SetDefault("gene_conversion.track_length", 0.0)

	v.SetDefault("model.kind", "hudson")

	v.SetDefault("store.kind", DefaultStoreKind)
	v.SetDefault("store.path", "")

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
}
