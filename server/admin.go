// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhaojp0411/twemproxy/logger"
)

// Admin is the small HTTP surface alongside the proxy listener: Prometheus
// metrics, a liveness probe, and optionally pprof.
type Admin struct {
	config AdminConfig
	router *mux.Router
	server *http.Server
}

// NewAdmin builds an Admin from the proxy's Admin config section. It
// returns a nil *Admin when the section disables it.
func NewAdmin(config AdminConfig) *Admin {
	if !config.Enabled {
		return nil
	}

	router := mux.NewRouter()
	a := &Admin{
		config: config,
		router: router,
		server: &http.Server{
			Handler:      router,
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
	}
	router.Methods(http.MethodGet).Path("/metrics").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recordMetrics()
		promhttp.Handler().ServeHTTP(w, r)
	})
	router.Methods(http.MethodGet).Path("/healthz").HandlerFunc(a.healthz)
	if config.Pprof {
		a.registerPprofRoutes()
	}
	return a
}

func (a *Admin) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe blocks serving the admin HTTP surface until Close is called.
func (a *Admin) ListenAndServe() error {
	ln, err := net.Listen("tcp", a.config.Address)
	if err != nil {
		return err
	}
	logger.Infof("admin server listening on %s", a.config.Address)
	err = a.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the admin server down.
func (a *Admin) Close() {
	_ = a.server.Shutdown(context.Background())
}

func (a *Admin) registerPprofRoutes() {
	a.router.Methods(http.MethodGet).Path("/debug/pprof/cmdline").HandlerFunc(pprof.Cmdline)
	a.router.Methods(http.MethodGet).Path("/debug/pprof/profile").HandlerFunc(pprof.Profile)
	a.router.Methods(http.MethodGet).Path("/debug/pprof/symbol").HandlerFunc(pprof.Symbol)
	a.router.Methods(http.MethodGet).Path("/debug/pprof/trace").HandlerFunc(pprof.Trace)
	a.router.Methods(http.MethodGet).Path("/debug/pprof/{other}").HandlerFunc(pprof.Index)
}
