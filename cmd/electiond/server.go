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
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/node"
	"github.com/algorand/go-blocklattice/util/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// server serves the node's metrics and election status
type server struct {
	log    logging.Logger
	node   *node.Node
	router *mux.Router
}

func makeServer(log logging.Logger, nd *node.Node) *server {
	s := &server{log: log, node: nd}
	s.router = s.makeRouter()
	return s
}

func (s *server) makeRouter() *mux.Router {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.MakePrometheusCollector(nil))
	registry.MustRegister(collectors.NewGoCollector())

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/elections/{root}", s.election).Methods(http.MethodGet)
	return r
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.node.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, st)
}

func (s *server) election(w http.ResponseWriter, r *http.Request) {
	root, err := crypto.DigestFromHex(mux.Vars(r)["root"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, ok := s.node.Election(root)
	if !ok {
		http.Error(w, "no live election for root", http.StatusNotFound)
		return
	}
	s.writeJSON(w, report)
}

func (s *server) writeJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(obj); err != nil {
		s.log.Warnf("cannot write response: %v", err)
	}
}

// serve runs the HTTP endpoint on addr until ctx is done. An empty addr
// only waits for ctx.
func (s *server) serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: readHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	reportInfof("Node running and serving status over HTTP on %v. Press Ctrl-C to exit", listener.Addr())
	return g.Wait()
}
