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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	ledgertesting "github.com/algorand/go-blocklattice/ledger/testing"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/node"
	"github.com/algorand/go-blocklattice/test/partitiontest"
)

func makeTestServer(t *testing.T) (*node.Node, *httptest.Server) {
	cfg := config.GetDefaultLocal()
	cfg.EnableVoting = false
	cfg.FrontiersConfirmation = config.FrontiersConfirmationDisabled
	nd, err := node.MakeNode(logging.TestingLog(t), cfg, config.ParamsFor(config.Dev), "", ledgertesting.Genesis())
	require.NoError(t, err)
	nd.Start()
	t.Cleanup(nd.Stop)

	ts := httptest.NewServer(makeServer(logging.TestingLog(t), nd).router)
	t.Cleanup(ts.Close)
	return nd, ts
}

func get(t *testing.T, url string) (int, []byte) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServerStatus(t *testing.T) {
	partitiontest.PartitionTest(t)

	_, ts := makeTestServer(t)
	code, body := get(t, ts.URL+"/status")
	require.Equal(t, http.StatusOK, code)

	var st node.StatusReport
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, uint64(1), st.BlockCount)
	require.Equal(t, uint64(1), st.CementedCount)
	require.Equal(t, 0, st.Elections)
	_, err := uuid.Parse(st.Instance)
	require.NoError(t, err)
}

func TestServerElection(t *testing.T) {
	partitiontest.PartitionTest(t)

	nd, ts := makeTestServer(t)

	code, _ := get(t, ts.URL+"/elections/nothex")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, ts.URL+"/elections/"+crypto.Hash([]byte("missing")).Hex())
	require.Equal(t, http.StatusNotFound, code)

	genesis := ledgertesting.Genesis()
	dest := ledgertesting.Addr(ledgertesting.Key(7))
	send := ledgertesting.Send(ledgertesting.GenesisKey(), &genesis.Block, dest, basics.GxrbRatio, config.ParamsFor(config.Dev).Thresholds)
	require.True(t, nd.ReceiveBlock(send))
	nd.Flush()

	code, body := get(t, ts.URL+"/elections/"+send.Root().Hex())
	require.Equal(t, http.StatusOK, code)
	var report node.ElectionReport
	require.NoError(t, json.Unmarshal(body, &report))
	require.Equal(t, send.Hash().Hex(), report.Winner)
}

func TestServerMetrics(t *testing.T) {
	partitiontest.PartitionTest(t)

	_, ts := makeTestServer(t)
	code, body := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "go_goroutines")
}

func TestGenesisKeyPersisted(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	first, err := loadGenesisKey(dir)
	require.NoError(t, err)
	second, err := loadGenesisKey(dir)
	require.NoError(t, err)
	require.Equal(t, first.PublicKey, second.PublicKey)
}
