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
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
)

// genesisSeedFilename holds the hex seed of the genesis account inside the
// data directory
const genesisSeedFilename = "genesis.seed"

// genesisSupply is the whole supply, opened on the genesis account.
var genesisSupply = basics.MustParseAmount("340282366920938463463374607431768211455")

// loadGenesisKey reads the genesis key of the data directory, creating a
// random one on first use.
func loadGenesisKey(dataDir string) (*crypto.SignatureSecrets, error) {
	path := filepath.Join(dataDir, genesisSeedFilename)
	var seed crypto.Seed
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		seed = crypto.RandomSeed()
		err = os.WriteFile(path, []byte(hex.EncodeToString(seed[:])+"\n"), 0600)
		if err != nil {
			return nil, fmt.Errorf("cannot write %s: %w", path, err)
		}
		return crypto.GenerateSignatureSecrets(seed), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if len(decoded) != len(seed) {
		return nil, fmt.Errorf("%s holds %d bytes, expected %d", path, len(decoded), len(seed))
	}
	copy(seed[:], decoded)
	return crypto.GenerateSignatureSecrets(seed), nil
}
