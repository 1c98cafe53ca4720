// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-blocklattice
//
// go-blocklattice is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-blocklattice is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-blocklattice.  If not, see <https://www.gnu.org/licenses/>.

// Package config holds the per-node configuration and the per-network
// parameters of the election engine.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ConfigFilename is the name of the config file inside a node data directory
const ConfigFilename = "config.json"

// LedgerFilenamePrefix is the prefix of the ledger store inside a network's
// directory
const LedgerFilenamePrefix = "ledger"

// LoadConfigFromDisk returns a Local config structure based on merging the defaults
// with settings loaded from the config file from the custom dir. If the custom file
// cannot be loaded, the default config is returned (with the error from loading the
// custom file).
func LoadConfigFromDisk(custom string) (c Local, err error) {
	return loadConfigFromFile(filepath.Join(custom, ConfigFilename))
}

func loadConfigFromFile(configFile string) (c Local, err error) {
	c = defaultLocal
	f, err := os.Open(configFile)
	if err != nil {
		return c, err
	}
	defer f.Close()

	err = loadConfig(f, &c)
	if err != nil {
		return defaultLocal, fmt.Errorf("cannot parse %s: %w", configFile, err)
	}
	return c, c.Validate()
}

func loadConfig(reader io.Reader, config *Local) error {
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	return dec.Decode(config)
}

// GetDefaultLocal returns a copy of the current defaultLocal config
func GetDefaultLocal() Local {
	return defaultLocal
}

// SaveToDisk writes the Local settings into a root/ConfigFilename file
func (cfg Local) SaveToDisk(root string) error {
	configpath := filepath.Join(root, ConfigFilename)
	filename := os.ExpandEnv(configpath)
	return cfg.SaveToFile(filename)
}

// SaveToFile saves the config to a specific filename, allowing overriding the default name
func (cfg Local) SaveToFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return cfg.Write(f)
}

// Write pretty-prints the config as JSON
func (cfg Local) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	enc.SetEscapeHTML(false)
	return enc.Encode(cfg)
}

// Validate rejects settings the election engine cannot run with.
func (cfg Local) Validate() error {
	if cfg.OnlineWeightQuorum > 100 {
		return fmt.Errorf("OnlineWeightQuorum must be a percentage, got %d", cfg.OnlineWeightQuorum)
	}
	if cfg.ElectionHintWeightPercent < 5 || cfg.ElectionHintWeightPercent > 50 {
		return fmt.Errorf("ElectionHintWeightPercent must be between 5 and 50, got %d", cfg.ElectionHintWeightPercent)
	}
	if cfg.ActiveElectionsSize <= 250 {
		return fmt.Errorf("ActiveElectionsSize must be greater than 250, got %d", cfg.ActiveElectionsSize)
	}
	if cfg.ConfirmationHistorySize <= 0 || cfg.InactiveVotesCacheSize <= 0 {
		return fmt.Errorf("cache sizes must be positive")
	}
	if cfg.MaxWorkGenerateMultiplier < 1 {
		return fmt.Errorf("MaxWorkGenerateMultiplier must be at least 1, got %v", cfg.MaxWorkGenerateMultiplier)
	}
	switch cfg.FrontiersConfirmation {
	case FrontiersConfirmationAuto, FrontiersConfirmationAlways, FrontiersConfirmationDisabled:
	default:
		return fmt.Errorf("unknown FrontiersConfirmation mode %q", cfg.FrontiersConfirmation)
	}
	return nil
}
