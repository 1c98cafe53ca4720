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

package config

import (
	"time"

	"github.com/algorand/go-blocklattice/data/basics"
)

// FrontiersConfirmationMode selects how eagerly a node starts elections for
// uncemented account frontiers.
type FrontiersConfirmationMode string

const (
	// FrontiersConfirmationAuto starts them aggressively only on nodes voting
	// with at least half a principal representative's weight.
	FrontiersConfirmationAuto FrontiersConfirmationMode = "auto"
	// FrontiersConfirmationAlways starts them aggressively on every node.
	FrontiersConfirmationAlways FrontiersConfirmationMode = "always"
	// FrontiersConfirmationDisabled never starts them.
	FrontiersConfirmationDisabled FrontiersConfirmationMode = "disabled"
)

// Local holds the per-node-instance configuration settings.
type Local struct {
	// Version tracks the current version of the defaults so we can migrate old -> new
	Version uint32

	// BaseLoggerDebugLevel specifies the logging level for the node log. The levels range from 0 (critical error / silent) to 5 (debug / verbose). The default value is 4 ('Info' - fairly verbose).
	BaseLoggerDebugLevel uint32

	// LogSizeLimit is the log file size limit in bytes. When set to 0 logs are written to stdout.
	LogSizeLimit uint64

	// LogArchiveName is the name of the file the live log is moved to once full.
	LogArchiveName string

	// EndpointAddress is the address the metrics and status endpoint listens on. Empty disables it.
	EndpointAddress string

	// EnableVoting lets the node's wallet representatives generate votes.
	EnableVoting bool

	// VoteMinimum is the minimum weight a local representative needs to vote, in raw.
	VoteMinimum basics.Amount

	// VoteGeneratorDelay is how long the vote generator waits to fill a batch of hashes.
	VoteGeneratorDelay time.Duration

	// VoteGeneratorThreshold is the number of queued hashes at which the vote generator
	// waits one more delay for a full batch.
	VoteGeneratorThreshold int

	// OnlineWeightMinimum is the floor of the online stake estimate and the minimum tally
	// an election needs before it can confirm, in raw.
	OnlineWeightMinimum basics.Amount

	// OnlineWeightQuorum is the percentage of online stake the leading candidate must exceed
	// the runner-up by.
	OnlineWeightQuorum uint32

	// ElectionHintWeightPercent is the percentage of online stake cached votes must reach
	// before the inactive votes cache starts an election on its own.
	ElectionHintWeightPercent uint32

	// ConfirmationHistorySize is the number of recently cemented election results kept.
	ConfirmationHistorySize int

	// ActiveElectionsSize is the soft limit on concurrently live elections. Beyond it old,
	// unconfirmed elections are dropped.
	ActiveElectionsSize int

	// InactiveVotesCacheSize is the number of block hashes votes are cached for while no
	// election exists for them.
	InactiveVotesCacheSize int

	// FrontiersConfirmation is one of "auto", "always" or "disabled".
	FrontiersConfirmation FrontiersConfirmationMode

	// MaxWorkGenerateMultiplier caps the work difficulty recommended to wallets, as a
	// multiple of the base threshold.
	MaxWorkGenerateMultiplier float64

	// DisableRequestLoop stops the background confirmation request loop. For testing only.
	DisableRequestLoop bool

	// DisableLazyBootstrap and DisableLegacyBootstrap gate which bootstrap attempts the
	// inactive votes cache may request.
	DisableLazyBootstrap   bool
	DisableLegacyBootstrap bool

	// DebugAssertions turns invariant violations inside elections into panics.
	DebugAssertions bool

	// LogVotes logs every vote applied to an election.
	LogVotes bool

	// LogElectionTally logs the tally of elections with more than one candidate.
	LogElectionTally bool

	// LogElectionExpirationTally logs the tally of elections that expire unconfirmed.
	LogElectionExpirationTally bool

	// LogActiveUpdate logs election difficulty updates.
	LogActiveUpdate bool

	// LogElectionResult logs the status of every confirmed election.
	LogElectionResult bool
}

// DefaultOnlineWeightMinimum is 60000 Gxrb
var DefaultOnlineWeightMinimum = basics.GxrbRatio.Mul64(60000)

var defaultLocal = Local{
	Version:                    1,
	BaseLoggerDebugLevel:       4,
	LogSizeLimit:               1073741824,
	LogArchiveName:             "node.archive.log",
	EndpointAddress:            "127.0.0.1:8090",
	EnableVoting:               false,
	VoteMinimum:                basics.GxrbRatio,
	VoteGeneratorDelay:         100 * time.Millisecond,
	VoteGeneratorThreshold:     3,
	OnlineWeightMinimum:        DefaultOnlineWeightMinimum,
	OnlineWeightQuorum:         50,
	ElectionHintWeightPercent:  10,
	ConfirmationHistorySize:    2048,
	ActiveElectionsSize:        50000,
	InactiveVotesCacheSize:     16 * 1024,
	FrontiersConfirmation:      FrontiersConfirmationAuto,
	MaxWorkGenerateMultiplier:  64,
	DisableRequestLoop:         false,
	DisableLazyBootstrap:       false,
	DisableLegacyBootstrap:     false,
	DebugAssertions:            false,
	LogVotes:                   false,
	LogElectionTally:           false,
	LogElectionExpirationTally: false,
	LogActiveUpdate:            false,
	LogElectionResult:          false,
}
