// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blinklabs-io/classly/internal/secrets"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "classly.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	Network            string `yaml:"network"`
	BlueprintPath      string `yaml:"blueprintPath"      split_words:"true"`
	ProjectID          string `yaml:"projectId"          envconfig:"CLASSLY_PROJECT_ID"`
	ProjectIDFile      string `yaml:"projectIdFile"      envconfig:"CLASSLY_PROJECT_ID_FILE"`
	ProviderURL        string `yaml:"providerUrl"        split_words:"true"`
	MetricsPort        uint   `yaml:"metricsPort"        split_words:"true"`
	Tracing            bool   `yaml:"tracing"`
	TracingStdout      bool   `yaml:"tracingStdout"      split_words:"true"`
	OraclePublicKeyHex string `yaml:"oraclePublicKey"    envconfig:"CLASSLY_ORACLE_PUBLIC_KEY"`
}

var globalConfig = &Config{
	Network:       "preview",
	BlueprintPath: "plutus.json",
	MetricsPort:   12798,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.classly/classly.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".classly", "classly.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/classly/classly.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/classly/classly.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Load config values from environment variables
	// We use "dummy" as the app name to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	if err := envconfig.Process("dummy", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}

func (c *Config) Validate() error {
	switch c.Network {
	case "mainnet", "preview":
	case "":
		return errors.New("no network defined")
	default:
		return fmt.Errorf("unknown network: %s", c.Network)
	}
	if c.ProjectID == "" && c.ProjectIDFile == "" {
		return errors.New(
			"no provider credential defined: set projectId or projectIdFile",
		)
	}
	if c.BlueprintPath == "" {
		return errors.New("no blueprint path defined")
	}
	return nil
}

// ResolveProjectID returns the provider API key, reading and
// decrypting the credential file when one is configured. Files are
// treated as SOPS-encrypted when they carry SOPS metadata.
func (c *Config) ResolveProjectID() (string, error) {
	if c.ProjectID != "" {
		return c.ProjectID, nil
	}
	buf, err := os.ReadFile(c.ProjectIDFile)
	if err != nil {
		return "", fmt.Errorf("error reading credential file: %w", err)
	}
	if bytes.Contains(buf, []byte(`"sops"`)) ||
		bytes.Contains(buf, []byte("sops:")) {
		buf, err = secrets.Decrypt(buf)
		if err != nil {
			return "", fmt.Errorf(
				"error decrypting credential file: %w",
				err,
			)
		}
	}
	projectID := strings.TrimSpace(string(buf))
	if projectID == "" {
		return "", errors.New("credential file is empty")
	}
	return projectID, nil
}
