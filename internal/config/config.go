// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the exporter's YAML configuration
// file, with `${VAR}`/`${VAR:default}` environment interpolation applied
// once before parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors spec.md §6's configuration table directly.
type Config struct {
	Endpoint struct {
		Port uint16 `yaml:"port"`
		Host string `yaml:"host"`
		Auth struct {
			Enabled  bool   `yaml:"enabled"`
			Login    string `yaml:"login"`
			Password string `yaml:"password"`
		} `yaml:"auth"`
		SSL struct {
			Enabled      bool   `yaml:"enabled"`
			RootCertPath string `yaml:"root-cert-path"`
			KeyPath      string `yaml:"key-path"`
		} `yaml:"ssl"`
	} `yaml:"endpoint"`

	Custom struct {
		Prefix string            `yaml:"prefix"`
		Labels map[string]string `yaml:"labels"`
	} `yaml:"custom"`

	ExporterMetrics struct {
		Enabled  bool     `yaml:"enabled"`
		Interval Duration `yaml:"interval"`
		Metrics  []string `yaml:"metrics"`
	} `yaml:"exporter-metrics"`

	DefaultKeys []string `yaml:"default-keys"`

	Droplets struct {
		Keys     []string `yaml:"keys"`
		Interval Duration `yaml:"interval"`
		Metrics  []string `yaml:"metrics"`
	} `yaml:"droplets"`

	Metrics map[string]FamilyConfig `yaml:"metrics"`
}

// FamilyConfig is one `metrics.<family>` block.
type FamilyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	Keys     []string `yaml:"keys"`
	Types    []string `yaml:"types"`
}

// defaults applies every documented default, per spec.md §6, before YAML
// unmarshalling overwrites the fields the file actually sets.
func defaults() Config {
	var c Config
	c.Endpoint.Port = 8888
	c.Endpoint.Host = "0.0.0.0"
	c.Endpoint.Auth.Login = "login"
	c.Endpoint.Auth.Password = "password"
	c.Endpoint.SSL.RootCertPath = "./cert.pem"
	c.Endpoint.SSL.KeyPath = "./key.pem"
	c.ExporterMetrics.Interval = Duration(5 * time.Second)
	c.Droplets.Interval = Duration(time.Hour)
	return c
}

// Load reads path, applies environment interpolation, and unmarshals YAML
// on top of the documented defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded, err := expandEnv(string(raw))
	if err != nil {
		return Config{}, fmt.Errorf("expand environment in %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
