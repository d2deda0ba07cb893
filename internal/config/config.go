// Package config loads runtime configuration via spf13/viper:
// defaults, a config file (if present), and environment variables, in
// that order of increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of knobs the serve/repl commands need.
type Config struct {
	DataDir        string        `mapstructure:"data_dir"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	Clustered      bool          `mapstructure:"clustered"`
	ClusterCookie  string        `mapstructure:"cluster_cookie"`
	HarnessTeams   int           `mapstructure:"harness_teams"`
	HarnessPerTeam int           `mapstructure:"harness_participants_per_team"`
	HarnessMsgs    int           `mapstructure:"harness_messages_per_team"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
}

// Load reads configFile (if non-empty) plus environment variables
// prefixed HACKMESH_ (e.g. HACKMESH_CLUSTER_COOKIE per spec.md §6's
// "Environment" bullet), falling back to defaults for anything unset.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "logfmt")
	v.SetDefault("clustered", false)
	v.SetDefault("cluster_cookie", "hackmesh")
	v.SetDefault("harness_teams", 100)
	v.SetDefault("harness_participants_per_team", 10)
	v.SetDefault("harness_messages_per_team", 10)
	v.SetDefault("call_timeout", 5*time.Second)

	v.SetEnvPrefix("hackmesh")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
