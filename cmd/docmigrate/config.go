package main

import (
	"fmt"

	"github.com/loykin/docmigrate"
	"github.com/loykin/docmigrate/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loadConfig merges the config file (if any), environment and flags, then
// validates before anything is dialled and installs the configured logger.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*docmigrate.Migrator, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &config.ConfigurationError{Field: "config", Reason: fmt.Sprintf("%s: %v", path, err)}
		}
	}
	cfg, err := config.FromMap(v.AllSettings())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.SetupLogging(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return &docmigrate.Migrator{Config: cfg, Logger: logger}, nil
}
