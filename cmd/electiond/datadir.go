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

import "os"

// dataDirEnv names the environment variable consulted when no data
// directory is given on the command line.
const dataDirEnv = "LATTICE_DATA"

var dataDirs []string

func resolveDataDir() string {
	var dir string
	if len(dataDirs) > 0 {
		dir = dataDirs[0]
	}
	if dir == "" {
		dir = os.Getenv(dataDirEnv)
	}
	return dir
}

func ensureSingleDataDir() string {
	if len(dataDirs) > 1 {
		reportErrorln(errorOneDataDirSupported)
	}
	dir := resolveDataDir()
	if dir == "" {
		reportErrorln(errorNoDataDirectory)
	}
	return dir
}
