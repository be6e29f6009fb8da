package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// config collects the server's runtime settings. Values come from
// MATCHBOOK_* environment variables or an optional matchbook.yaml in the
// working directory; defaults suit the bundled sample data.
type config struct {
	ListenAddr    string
	DataDir       string
	SymbolFile    string
	Separator     string
	AuthToken     string
	CORSOrigin    string
	SnapshotDepth int
	BotsEnabled   bool
	BotInterval   time.Duration
}

func loadConfig() (config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("symbol_file", "Symbols.csv")
	v.SetDefault("separator", ",")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("snapshot_depth", 10)
	v.SetDefault("bots_enabled", false)
	v.SetDefault("bot_interval", "100ms")

	v.SetEnvPrefix("matchbook")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("matchbook")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config{}, err
		}
	}

	return config{
		ListenAddr:    v.GetString("listen_addr"),
		DataDir:       v.GetString("data_dir"),
		SymbolFile:    v.GetString("symbol_file"),
		Separator:     v.GetString("separator"),
		AuthToken:     v.GetString("auth_token"),
		CORSOrigin:    v.GetString("cors_origin"),
		SnapshotDepth: v.GetInt("snapshot_depth"),
		BotsEnabled:   v.GetBool("bots_enabled"),
		BotInterval:   v.GetDuration("bot_interval"),
	}, nil
}
