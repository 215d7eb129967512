// Copyright Acetone Authors
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
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/acetone-proxy/acetone/internal/acetoneconfig"
	"github.com/acetone-proxy/acetone/internal/cache"
	"github.com/acetone-proxy/acetone/internal/durationsetting"
	"github.com/acetone-proxy/acetone/internal/healthz"
	"github.com/acetone-proxy/acetone/internal/httpsvc"
	"github.com/acetone-proxy/acetone/internal/middleware"
	"github.com/acetone-proxy/acetone/internal/registry"
	"github.com/acetone-proxy/acetone/internal/registry/fabricclient"
	"github.com/acetone-proxy/acetone/internal/resilience"
	"github.com/acetone-proxy/acetone/internal/resolver"
	"github.com/acetone-proxy/acetone/internal/telemetry"
	"github.com/acetone-proxy/acetone/internal/urlparser"
	"github.com/acetone-proxy/acetone/internal/workgroup"
	"github.com/acetone-proxy/acetone/pkg/admission"
)

// serveContext holds the flags registered on the serve subcommand. It
// is applied on top of a parsed acetoneconfig.Config, mirroring the
// teacher's serveContext-overrides-config-file pattern.
type serveContext struct {
	debug      bool
	configFile string

	clusterEndpoints     []string
	identifierLocation   string
	credentialsMode      string
	clientCertPath       string
	clientKeyPath        string
	clientCertThumbprint string
	clientCertSubject    string
	serverCAPath         string

	maxConcurrentRequests int
	partitionCacheTTL     string

	listenAddress  string
	metricsAddress string
	healthAddress  string

	warmup bool
}

func registerServe(app *kingpin.Application) (*kingpin.CmdClause, *serveContext) {
	var ctx serveContext

	serve := app.Command("serve", "Start acetoned.")
	serve.Flag("debug", "Enable debug logging.").BoolVar(&ctx.debug)
	serve.Flag("config-file", "Path to an acetoneconfig YAML file.").StringVar(&ctx.configFile)
	serve.Flag("cluster-endpoint", "Registry cluster management endpoint; repeatable.").StringsVar(&ctx.clusterEndpoints)
	serve.Flag("identifier-location", "Where to extract the application identifier from: Subdomain, SubdomainPreHyphens, SubdomainPostHyphens, FirstPathSegment.").StringVar(&ctx.identifierLocation)
	serve.Flag("credentials-mode", "Cluster authentication mode: None, CertificateByThumbprint, CertificateBySubject.").StringVar(&ctx.credentialsMode)
	serve.Flag("client-cert-path", "Client certificate for mutual TLS to the cluster.").StringVar(&ctx.clientCertPath)
	serve.Flag("client-key-path", "Client key for mutual TLS to the cluster.").StringVar(&ctx.clientKeyPath)
	serve.Flag("client-cert-thumbprint", "SHA-1 thumbprint selecting the client certificate.").StringVar(&ctx.clientCertThumbprint)
	serve.Flag("client-cert-subject", "Subject substring selecting the client certificate.").StringVar(&ctx.clientCertSubject)
	serve.Flag("server-ca-path", "PEM CA bundle used to verify the cluster's server certificate.").StringVar(&ctx.serverCAPath)
	serve.Flag("max-concurrent-requests", "Admission control limit (1-1000).").IntVar(&ctx.maxConcurrentRequests)
	serve.Flag("partition-cache-ttl", "Partition cache lifetime: empty or \"0\" for the default, \"disabled\"/\"infinity\" to disable, or a Go duration such as \"30s\".").StringVar(&ctx.partitionCacheTTL)
	serve.Flag("listen-address", "Proxy listen address.").StringVar(&ctx.listenAddress)
	serve.Flag("metrics-address", "Metrics listen address.").StringVar(&ctx.metricsAddress)
	serve.Flag("health-address", "Health listen address.").StringVar(&ctx.healthAddress)
	serve.Flag("warmup", "Resolve every known application at startup.").BoolVar(&ctx.warmup)

	return serve, &ctx
}

// loadConfig parses --config-file (if given), layers the serveContext's
// flag overrides on top, applies defaults, and validates the result.
func (s *serveContext) loadConfig() (*acetoneconfig.Config, error) {
	conf := acetoneconfig.Config{}
	if s.configFile != "" {
		f, err := os.Open(s.configFile)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		parsed, err := acetoneconfig.Parse(f)
		if err != nil {
			return nil, err
		}
		conf = *parsed
	}

	if len(s.clusterEndpoints) > 0 {
		conf.ClusterEndpoints = s.clusterEndpoints
	}
	if s.identifierLocation != "" {
		conf.IdentifierLocation = acetoneconfig.IdentifierLocation(s.identifierLocation)
	}
	if s.credentialsMode != "" {
		conf.CredentialsMode = acetoneconfig.CredentialsMode(s.credentialsMode)
	}
	if s.clientCertPath != "" {
		conf.Cert.ClientCertPath = s.clientCertPath
	}
	if s.clientKeyPath != "" {
		conf.Cert.ClientKeyPath = s.clientKeyPath
	}
	if s.clientCertThumbprint != "" {
		conf.Cert.ClientCertThumbprint = s.clientCertThumbprint
	}
	if s.clientCertSubject != "" {
		conf.Cert.ClientCertSubject = s.clientCertSubject
	}
	if s.serverCAPath != "" {
		conf.Cert.ServerCAPath = s.serverCAPath
	}
	if s.maxConcurrentRequests != 0 {
		conf.MaxConcurrentRequests = s.maxConcurrentRequests
	}
	if s.partitionCacheTTL != "" {
		setting := durationsetting.Parse(s.partitionCacheTTL)
		switch {
		case setting.IsDisabled():
			conf.Cache.DisablePartitionCache = true
		case setting.UseDefault():
			conf.Cache.PartitionCacheTTLSeconds = 0
			conf.Cache.DisablePartitionCache = false
		default:
			conf.Cache.DisablePartitionCache = false
			conf.Cache.PartitionCacheTTLSeconds = int(setting.Duration() / time.Second)
		}
	}
	if s.listenAddress != "" {
		conf.ListenAddress = s.listenAddress
	}
	if s.metricsAddress != "" {
		conf.MetricsAddress = s.metricsAddress
	}
	if s.healthAddress != "" {
		conf.HealthAddress = s.healthAddress
	}

	out := conf.Defaulted()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func doServe(log *logrus.Logger, serveCtx *serveContext) error {
	conf, err := serveCtx.loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)

	credMode, err := translateCredentialsMode(conf.CredentialsMode)
	if err != nil {
		return err
	}

	client, err := fabricclient.New(fabricclient.Config{
		Endpoints:            conf.ClusterEndpoints,
		CredentialsMode:      credMode,
		ClientCertPath:       conf.Cert.ClientCertPath,
		ClientKeyPath:        conf.Cert.ClientKeyPath,
		ClientCertThumbprint: conf.Cert.ClientCertThumbprint,
		ClientCertSubject:    conf.Cert.ClientCertSubject,
		ServerCAPath:         conf.Cert.ServerCAPath,
		Log:                  log.WithField("context", "fabricclient"),
	})
	if err != nil {
		return fmt.Errorf("constructing cluster client: %w", err)
	}
	defer client.Close()

	pipeline := resilience.NewPipeline(resilience.Config{
		PerAttemptTimeout:       conf.Resilience.PerAttemptTimeout(),
		RetryCount:              conf.Resilience.RetryCount,
		InitialRetryDelay:       conf.Resilience.InitialRetryDelay(),
		MaxRetryDelay:           conf.Resilience.MaxRetryDelay(),
		BreakerFailureThreshold: conf.Resilience.CircuitBreakerFailureThreshold,
		BreakDuration:           conf.Resilience.BreakDuration(),
		SamplingDuration:        conf.Resilience.SamplingDuration(),
		IsRetryable:             isRetryable,
		Recorder:                metrics,
	})

	resolverCache := cache.New(cache.Options{
		PartitionTTL:          conf.Cache.TTL(),
		DisablePartitionCache: conf.Cache.DisablePartitionCache,
		Recorder:              metrics,
	})

	res := resolver.New(resolver.Options{
		Cache:    resolverCache,
		Registry: client,
		Pipeline: pipeline,
		Log:      log.WithField("context", "resolver"),
		Recorder: metrics,
		Warmup:   serveCtx.warmup,
	})
	defer res.Close()

	mode, err := translateIdentifierLocation(conf.IdentifierLocation)
	if err != nil {
		return err
	}

	handler := middleware.New(res, mode, nil, log.WithField("context", "middleware"))
	limited := admission.New(handler, int64(conf.MaxConcurrentRequests), 5)

	var group workgroup.Group

	group.AddContext(func(ctx context.Context) {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				res.Probe(probeCtx)
				cancel()
			}
		}
	})

	proxyAddr, proxyPort, err := splitHostPort(conf.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen-address: %w", err)
	}
	addService(&group, (&httpsvc.Service{
		Addr:        proxyAddr,
		Port:        proxyPort,
		Handler:     limited,
		FieldLogger: log.WithField("context", "proxy"),
	}).Start)

	metricsAddr, metricsPort, err := splitHostPort(conf.MetricsAddress)
	if err != nil {
		return fmt.Errorf("metrics-address: %w", err)
	}
	metricsSvc := &httpsvc.Service{
		Addr:        metricsAddr,
		Port:        metricsPort,
		FieldLogger: log.WithField("context", "metrics"),
	}
	metricsSvc.Handle("/metrics", telemetry.Handler(reg))
	addService(&group, metricsSvc.Start)

	healthAddr, healthPort, err := splitHostPort(conf.HealthAddress)
	if err != nil {
		return fmt.Errorf("health-address: %w", err)
	}
	healthSvc := &httpsvc.Service{
		Addr:        healthAddr,
		Port:        healthPort,
		FieldLogger: log.WithField("context", "health"),
	}
	healthSvc.HandleFunc("/health/live", healthz.Live)
	healthSvc.Handle("/health/ready", healthz.Ready(res))
	addService(&group, healthSvc.Start)

	log.Info("starting acetoned")
	return group.Run()
}

// addService bridges an httpsvc.Service-shaped Start(context.Context)
// error into workgroup.Group's stop-channel contract.
func addService(g *workgroup.Group, start func(context.Context) error) {
	g.Add(func(stop <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-stop
			cancel()
		}()
		return start(ctx)
	})
}

func translateCredentialsMode(mode acetoneconfig.CredentialsMode) (fabricclient.CredentialsMode, error) {
	switch mode {
	case "", acetoneconfig.CredentialsNone:
		return fabricclient.CredentialsNone, nil
	case acetoneconfig.CredentialsByThumbprint:
		return fabricclient.CredentialsByThumbprint, nil
	case acetoneconfig.CredentialsBySubject:
		return fabricclient.CredentialsBySubject, nil
	default:
		return 0, fmt.Errorf("unrecognized credentialsMode %q", mode)
	}
}

func translateIdentifierLocation(loc acetoneconfig.IdentifierLocation) (urlparser.Mode, error) {
	switch loc {
	case "", acetoneconfig.LocationSubdomain:
		return urlparser.Subdomain, nil
	case acetoneconfig.LocationSubdomainPreHyphens:
		return urlparser.SubdomainPreHyphens, nil
	case acetoneconfig.LocationSubdomainPostHyphens:
		return urlparser.SubdomainPostHyphens, nil
	case acetoneconfig.LocationFirstPathSegment:
		return urlparser.FirstPathSegment, nil
	default:
		return "", fmt.Errorf("unrecognized identifierLocation %q", loc)
	}
}

// isRetryable classifies which errors the resilience pipeline retries:
// transient registry faults and per-attempt timeouts. Permanent faults,
// circuit-open rejections and cancellations are never retried.
func isRetryable(err error) bool {
	return errors.Is(err, registry.ErrTransient) || errors.Is(err, resilience.ErrTimeout)
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
