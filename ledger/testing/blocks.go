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

package testing

import (
	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/data/work"
	"github.com/algorand/go-blocklattice/ledger"
)

// GenesisAmount is the whole supply held by the genesis account.
var GenesisAmount = basics.MustParseAmount("340282366920938463463374607431768211455")

// Key returns deterministic secrets for test account i.
func Key(i byte) *crypto.SignatureSecrets {
	var seed crypto.Seed
	seed[0] = i
	seed[31] = 0x5a
	return crypto.GenerateSignatureSecrets(seed)
}

// GenesisKey holds the genesis account in every test ledger.
func GenesisKey() *crypto.SignatureSecrets {
	return Key(0)
}

// Addr returns the account of secrets.
func Addr(s *crypto.SignatureSecrets) basics.Address {
	return basics.Address(s.PublicKey)
}

// Genesis is the genesis of every test ledger.
func Genesis() ledger.Genesis {
	return ledger.MakeGenesis(GenesisKey(), GenesisAmount)
}

// DevParams are the network parameters test ledgers run with.
func DevParams() config.NetworkParams {
	return config.ParamsFor(config.Dev)
}

// Solve attaches work meeting the highest threshold of th to blk.
func Solve(blk *blocks.Block, th work.Thresholds) *blocks.Block {
	return blk.WithWork(work.Generate(blk.Root(), th.Base(), 0))
}

// Send builds a block moving amount from the chain headed by prev to dest.
func Send(from *crypto.SignatureSecrets, prev *blocks.Block, dest basics.Address, amount basics.Amount, th work.Thresholds) *blocks.Block {
	blk := &blocks.Block{
		Account:        Addr(from),
		Previous:       prev.Hash(),
		Representative: prev.Representative,
		Balance:        prev.Balance.Sub(amount),
		Link:           crypto.Digest(dest),
	}
	blk.Sign(from)
	return Solve(blk, th)
}

// Receive builds a block receiving amount from send. A nil prev opens the
// account, delegating to itself.
func Receive(to *crypto.SignatureSecrets, prev *blocks.Block, send *blocks.Block, amount basics.Amount, th work.Thresholds) *blocks.Block {
	blk := &blocks.Block{
		Account:        Addr(to),
		Representative: Addr(to),
		Balance:        amount,
		Link:           send.Hash(),
	}
	if prev != nil {
		blk.Previous = prev.Hash()
		blk.Representative = prev.Representative
		blk.Balance = prev.Balance.Add(amount)
	}
	blk.Sign(to)
	return Solve(blk, th)
}

// Change builds a block delegating the chain headed by prev to rep.
func Change(acct *crypto.SignatureSecrets, prev *blocks.Block, rep basics.Address, th work.Thresholds) *blocks.Block {
	blk := &blocks.Block{
		Account:        Addr(acct),
		Previous:       prev.Hash(),
		Representative: rep,
		Balance:        prev.Balance,
	}
	blk.Sign(acct)
	return Solve(blk, th)
}

// Epoch builds an upgrade of account to epoch e, signed by the genesis key.
// A nil prev upgrades an account that has not been opened yet.
func Epoch(account basics.Address, prev *blocks.Block, e basics.Epoch, th work.Thresholds) *blocks.Block {
	blk := &blocks.Block{
		Account: account,
		Link:    ledger.EpochLink(e),
	}
	if prev != nil {
		blk.Previous = prev.Hash()
		blk.Representative = prev.Representative
		blk.Balance = prev.Balance
	}
	blk.Sign(GenesisKey())
	return Solve(blk, th)
}
