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

package main

import (
	"flag"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/directory"
	"github.com/hearthchat/hearth/internal"
	"github.com/hearthchat/hearth/internal/caching"
	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/setup"
	basepkg "github.com/hearthchat/hearth/setup/base"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/jetstream"
	"github.com/hearthchat/hearth/setup/process"
	"github.com/hearthchat/hearth/typingserver"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/inthttp"
)

var (
	unixSocket = flag.String("unix-socket", "",
		"EXPERIMENTAL(unstable): The HTTP listening unix socket for the server (disables http[s]-bind-address feature)",
	)
	unixSocketPermission = flag.String("unix-socket-permission", "755",
		"EXPERIMENTAL(unstable): The HTTP listening unix socket permission for the server (in chmod format like 755)",
	)
	httpBindAddr     = flag.String("http-bind-address", ":8008", "The HTTP listening port for the server")
	httpsBindAddr    = flag.String("https-bind-address", ":8448", "The HTTPS listening port for the server")
	certFile         = flag.String("tls-cert", "", "The PEM formatted X509 certificate to use for TLS")
	keyFile          = flag.String("tls-key", "", "The PEM private key to use for TLS")
	serveInternalAPI = flag.Bool("serve-internal-api", false, "Also serve the typing server internal API on typing_server.internal_api.listen")
	remoteTypingAPI  = flag.Bool("remote-typing-server", false, "Forward typing writes and reads to the typing server at typing_server.internal_api.connect instead of using the database directly")
)

func main() {
	cfg := setup.ParseFlags()
	httpAddr := config.ServerAddress{}
	httpsAddr := config.ServerAddress{}
	if *unixSocket == "" {
		http, err := config.HTTPAddress("http://" + *httpBindAddr)
		if err != nil {
			logrus.WithError(err).Fatalf("Failed to parse http address")
		}
		httpAddr = http
		https, err := config.HTTPAddress("https://" + *httpsBindAddr)
		if err != nil {
			logrus.WithError(err).Fatalf("Failed to parse https address")
		}
		httpsAddr = https
	} else {
		socket, err := config.UnixSocketAddress(*unixSocket, *unixSocketPermission)
		if err != nil {
			logrus.WithError(err).Fatalf("Failed to parse unix socket")
		}
		httpAddr = socket
	}

	processCtx := process.NewProcessContext()

	internal.SetupStdLogging()
	internal.SetupHookLogging(cfg.Logging)

	basepkg.PlatformSanityChecks()

	logrus.Infof("Hearth version %s", internal.VersionString())

	// setup tracing
	closer, err := cfg.SetupTracing()
	if err != nil {
		logrus.WithError(err).Panicf("failed to start opentracing")
	}
	defer closer.Close() // nolint: errcheck

	// setup sentry
	if cfg.Global.Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging...")
		err = sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Global.Sentry.DSN,
			Environment:      cfg.Global.Sentry.Environment,
			Debug:            true,
			ServerName:       cfg.Global.ServerName,
			Release:          "hearth@" + internal.VersionString(),
			AttachStacktrace: true,
		})
		if err != nil {
			logrus.WithError(err).Panic("failed to start Sentry")
		}
	}

	clock := clockwork.NewRealClock()
	routers := httputil.NewRouters()
	natsInstance := jetstream.NATSInstance{}
	dir := directory.NewDirectory(&cfg.Directory)

	var typingAPI api.TypingServerInternalAPI
	if *remoteTypingAPI {
		typingAPI, err = inthttp.NewTypingServerClient(cfg.TypingServer.InternalAPI.Connect, basepkg.CreateInternalHTTPClient())
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create typing server client")
		}
		logrus.Infof("Forwarding typing requests to %s", cfg.TypingServer.InternalAPI.Connect)
	} else {
		cm := sqlutil.NewConnectionManager(processCtx, cfg.Global.DatabaseOptions)
		caches, cacheErr := caching.NewRistrettoCache(
			caching.CacheSize(cfg.TypingServer.DisplayNameCache.EstimatedMaxSize),
			cfg.TypingServer.DisplayNameCache.MaxAge,
			cfg.TypingServer.MembershipCacheLifetime,
			cfg.Global.Metrics.Enabled,
		)
		if cacheErr != nil {
			logrus.WithError(cacheErr).Fatal("Failed to create caches")
		}
		typingAPI = typingserver.NewInternalAPI(processCtx, cfg, cm, &natsInstance, caches, dir, dir, clock)
	}

	n := typingserver.NewNotifier(processCtx, cfg, &natsInstance, clock)
	typingserver.AddPublicRoutes(routers, cfg, typingAPI, dir, n, clock)

	if *serveInternalAPI {
		if *remoteTypingAPI {
			logrus.Fatal("-serve-internal-api cannot be combined with -remote-typing-server")
		}
		listenAddr, err := config.HTTPAddress(cfg.TypingServer.InternalAPI.Listen)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to parse internal API address")
		}
		typingserver.AddInternalRoutes(routers.Internal, typingAPI)
		basepkg.ServeInternalAPI(processCtx, routers, listenAddr)
	}

	upCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hearth",
		Name:      "up",
		ConstLabels: map[string]string{
			"version": internal.VersionString(),
		},
	})
	upCounter.Add(1)
	prometheus.MustRegister(upCounter)

	go func() {
		basepkg.SetupAndServeHTTP(processCtx, cfg, routers, httpAddr, nil, nil)
	}()
	// Handle HTTPS if certificate and key are provided
	if *unixSocket == "" && *certFile != "" && *keyFile != "" {
		go func() {
			basepkg.SetupAndServeHTTP(processCtx, cfg, routers, httpsAddr, certFile, keyFile)
		}()
	}

	// We want to block forever to let the HTTP and HTTPS handler serve the APIs
	basepkg.WaitForShutdown(processCtx)
}
