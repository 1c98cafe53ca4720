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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/ledger"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/node"
)

// liveLogFilename is the node log inside the data directory when the log
// size is limited
const liveLogFilename = "node.log"

// lockFilename guards a data directory against a second daemon
const lockFilename = "electiond.lock"

var (
	networkName string
	logLevel    string
)

// genesisWalletID is the wallet holding the genesis key
var genesisWalletID = crypto.Hash([]byte("electiond genesis wallet"))

func init() {
	runCmd.Flags().StringVarP(&networkName, "network", "n", string(config.Dev), "Network parameters to run with: dev, test, beta or live")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override BaseLoggerDebugLevel with a level name or number")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node until interrupted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		dataDir := ensureSingleDataDir()
		network, err := config.ParseNetwork(networkName)
		if err != nil {
			reportErrorf("%v", err)
		}
		err = run(dataDir, network)
		if err != nil {
			reportErrorf("%v", err)
		}
	},
}

func run(dataDir string, network config.Network) error {
	absolutePath, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("can't convert data directory's path to absolute, %v", dataDir)
	}
	err = os.MkdirAll(absolutePath, 0700)
	if err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(absolutePath, lockFilename))
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("unexpected failure in establishing %s: %w", lockFilename, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s; is electiond already running in this data directory?", lockFilename)
	}
	defer fileLock.Unlock()

	cfg, err := loadConfig(absolutePath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	log := logging.Base()
	log.SetLevel(logging.Level(cfg.BaseLoggerDebugLevel))
	if logLevel != "" {
		lvl, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(lvl)
	}
	if cfg.LogSizeLimit > 0 {
		writer, err := logging.MakeCyclicFileWriter(filepath.Join(absolutePath, liveLogFilename), filepath.Join(absolutePath, cfg.LogArchiveName), cfg.LogSizeLimit)
		if err != nil {
			return err
		}
		defer writer.Close()
		log.SetOutput(writer)
	}

	secrets, err := loadGenesisKey(absolutePath)
	if err != nil {
		return err
	}
	genesis := ledger.MakeGenesis(secrets, genesisSupply)

	nd, err := node.MakeNode(log, cfg, config.ParamsFor(network), absolutePath, genesis)
	if err != nil {
		return err
	}
	nd.Wallets().Insert(genesisWalletID, secrets)
	nd.Start()
	defer nd.Stop()
	log.Infof("node running on %s with genesis account %v", network, genesis.Account())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return makeServer(log, nd).serve(ctx, cfg.EndpointAddress)
}
