// Copyright 2024 The Hearth Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/kardianos/minwinsvc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/process"
)

// HTTPServerTimeout bounds writes on the public listener. It must outlast
// the longest long-poll a client may request.
const HTTPServerTimeout = time.Minute * 5

// ConfigureMonitorEndpoints adds the liveness and health endpoints.
func ConfigureMonitorEndpoints(processContext *process.ProcessContext, routers httputil.Routers) {
	routers.Monitor.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	routers.Monitor.Handle("/health", httputil.HealthCheckHandler(processContext))
}

// SetupAndServeHTTP serves the client and monitor routers, plus /metrics if
// enabled, on the given address until the process shuts down.
func SetupAndServeHTTP(
	processContext *process.ProcessContext,
	cfg *config.Hearth,
	routers httputil.Routers,
	externalHTTPAddr config.ServerAddress,
	certFile, keyFile *string,
) {
	externalRouter := mux.NewRouter().SkipClean(true).UseEncodedPath()

	externalServ := &http.Server{
		Addr:         externalHTTPAddr.Address,
		WriteTimeout: HTTPServerTimeout,
		Handler:      externalRouter,
		BaseContext: func(_ net.Listener) context.Context {
			return processContext.Context()
		},
	}

	if cfg.Global.Metrics.Enabled {
		externalRouter.Handle("/metrics", httputil.WrapHandlerInBasicAuth(promhttp.Handler(), cfg.Global.Metrics.BasicAuth))
	}

	ConfigureMonitorEndpoints(processContext, routers)

	var clientHandler http.Handler
	clientHandler = routers.Client
	if cfg.Global.Sentry.Enabled {
		sentryHandler := sentryhttp.New(sentryhttp.Options{
			Repanic: true,
		})
		clientHandler = sentryHandler.Handle(routers.Client)
	}
	externalRouter.PathPrefix(httputil.MonitorPathPrefix).Handler(routers.Monitor)
	externalRouter.PathPrefix(httputil.PublicClientPathPrefix).Handler(clientHandler)

	externalRouter.NotFoundHandler = httputil.NotFoundCORSHandler
	externalRouter.MethodNotAllowedHandler = httputil.NotAllowedHandler

	if externalHTTPAddr.Enabled() {
		go func() {
			var externalShutdown atomic.Bool // RegisterOnShutdown can be called more than once
			logrus.Infof("Starting external listener on %s", externalServ.Addr)
			processContext.ComponentStarted()
			externalServ.RegisterOnShutdown(func() {
				if externalShutdown.CompareAndSwap(false, true) {
					processContext.ComponentFinished()
					logrus.Infof("Stopped external HTTP listener")
				}
			})
			if certFile != nil && keyFile != nil {
				if err := externalServ.ListenAndServeTLS(*certFile, *keyFile); err != nil {
					if err != http.ErrServerClosed {
						logrus.WithError(err).Fatal("failed to serve HTTPS")
					}
				}
			} else {
				if externalHTTPAddr.IsUnixSocket() {
					err := os.Remove(externalHTTPAddr.Address)
					if err != nil && !os.IsNotExist(err) {
						logrus.WithError(err).Fatal("failed to remove existing unix socket")
					}
					listener, err := net.Listen(externalHTTPAddr.Network(), externalHTTPAddr.Address)
					if err != nil {
						logrus.WithError(err).Fatal("failed to serve unix socket")
					}
					err = os.Chmod(externalHTTPAddr.Address, externalHTTPAddr.UnixSocketPermission)
					if err != nil {
						logrus.WithError(err).Fatal("failed to set unix socket permissions")
					}
					if err := externalServ.Serve(listener); err != nil {
						if err != http.ErrServerClosed {
							logrus.WithError(err).Fatal("failed to serve unix socket")
						}
					}
				} else {
					if err := externalServ.ListenAndServe(); err != nil {
						if err != http.ErrServerClosed {
							logrus.WithError(err).Fatal("failed to serve HTTP")
						}
					}
				}
			}
			logrus.Infof("Stopped external listener on %s", externalServ.Addr)
		}()
	}

	minwinsvc.SetOnExit(processContext.ShutdownHearth)
	<-processContext.WaitForShutdown()

	logrus.Infof("Stopping HTTP listeners")
	_ = externalServ.Shutdown(context.Background())
	logrus.Infof("Stopped HTTP listeners")
}

// ServeInternalAPI serves the internal API router on listenAddr, e.g.
// "http://localhost:7782", until the process shuts down. The listener
// speaks HTTP/2 without TLS.
func ServeInternalAPI(processContext *process.ProcessContext, routers httputil.Routers, listenAddr config.ServerAddress) {
	internalRouter := mux.NewRouter().SkipClean(true).UseEncodedPath()
	internalRouter.PathPrefix(httputil.InternalPathPrefix).Handler(routers.Internal)
	internalServ := &http.Server{
		Addr:    listenAddr.Address,
		Handler: h2c.NewHandler(internalRouter, &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context {
			return processContext.Context()
		},
	}
	go func() {
		var internalShutdown atomic.Bool
		logrus.Infof("Starting internal listener on %s", internalServ.Addr)
		processContext.ComponentStarted()
		internalServ.RegisterOnShutdown(func() {
			if internalShutdown.CompareAndSwap(false, true) {
				processContext.ComponentFinished()
				logrus.Infof("Stopped internal HTTP listener")
			}
		})
		if err := internalServ.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("failed to serve internal API")
		}
	}()
	go func() {
		<-processContext.WaitForShutdown()
		_ = internalServ.Shutdown(context.Background())
	}()
}

// CreateInternalHTTPClient returns a client for calling another process's
// internal API, which is served as HTTP/2 without TLS.
func CreateInternalHTTPClient() *http.Client {
	return &http.Client{
		Timeout: time.Minute * 10,
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLS: func(network, addr string, _ *tls.Config) (net.Conn, error) {
				// Dialling plainly is what makes the transport speak h2c.
				return net.Dial(network, addr)
			},
		},
	}
}

// WaitForShutdown blocks until SIGINT, SIGTERM or an internal shutdown, then
// waits for every component to finish.
func WaitForShutdown(processCtx *process.ProcessContext) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
	case <-processCtx.WaitForShutdown():
	}
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	logrus.Warnf("Shutdown signal received")

	processCtx.ShutdownHearth()
	processCtx.WaitForComponentsToFinish()
	if sentry.CurrentHub().Client() != nil {
		if !sentry.Flush(time.Second * 5) {
			logrus.Warnf("failed to flush all Sentry events!")
		}
	}

	logrus.Warnf("Hearth is exiting now")
}
