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

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/algorand/go-blocklattice/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration of the data directory",
	Long:  "Print the configuration the node would run with: the defaults merged with the data directory's config.json, if it exists.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg, err := loadConfig(ensureSingleDataDir())
		if err != nil {
			reportErrorf("Error loading config: %v", err)
		}
		err = cfg.Write(os.Stdout)
		if err != nil {
			reportErrorf("Error writing config: %v", err)
		}
	},
}

// loadConfig returns the data directory's configuration, or the defaults
// when the directory has no config file.
func loadConfig(dataDir string) (config.Local, error) {
	cfg, err := config.LoadConfigFromDisk(dataDir)
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	return cfg, nil
}
