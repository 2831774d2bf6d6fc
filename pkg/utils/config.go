// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"strings"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"

	"github.com/spf13/viper"
)

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges configFileName from the usual search path into viper.
// It reports whether a file was found; a missing optional file is not an error.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.courier")
	viper.AddConfigPath("/usr/local/etc/courier/")
	viper.AddConfigPath("/etc/courier/")
	viper.SetEnvPrefix("courier")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if required {
				logger.Fatal().Msgf("Config file not found: %s", configFileName)
			}
			logger.Info().Msgf("Config file not found: %s", configFileName)
			return false
		}

		if required {
			logger.Fatal().Err(err).Msgf("Failed to load required config file: %s", configFileName)
		}
		logger.Warn().Err(err).Msgf("Failed to load config file: %s", configFileName)
		return false
	}
	logger.Info().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}
