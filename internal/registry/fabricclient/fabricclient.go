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

// Package fabricclient implements registry.Port against a Service
// Fabric-style cluster management REST API: GET /Applications, GET
// .../$/GetServices, and GET .../$/ResolvePartition used both for
// one-shot resolution and, polled on an interval by a background watcher
// per subscribed service, for change notification.
package fabricclient

import (
	"bytes"
	"context"
	"crypto/sha1" //#nosec G505 -- certificate thumbprints are conventionally SHA-1
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/acetone-proxy/acetone/internal/fabric"
	"github.com/acetone-proxy/acetone/internal/registry"
)

// CredentialsMode selects how the client authenticates to the cluster.
type CredentialsMode int

const (
	// CredentialsNone presents no client certificate; the endpoint URL's
	// scheme decides between plain HTTP and HTTPS.
	CredentialsNone CredentialsMode = iota
	// CredentialsByThumbprint selects a client certificate by matching
	// the SHA-1 thumbprint of a certificate loaded from ClientCertPath.
	CredentialsByThumbprint
	// CredentialsBySubject selects a client certificate by matching a
	// substring of its subject common name.
	CredentialsBySubject
)

// Config configures the client's connection to the cluster.
type Config struct {
	// Endpoints is the ordered list of cluster management endpoints.
	// The client tries them in order, advancing to the next on a
	// transient connection failure.
	Endpoints []string

	CredentialsMode CredentialsMode

	// ClientCertPath / ClientKeyPath locate the client certificate and
	// key presented for mutual TLS. ClientCertThumbprint / ClientCertSubject
	// are matched against the loaded certificate's identity when
	// CredentialsMode requires it, rather than used to search an OS
	// certificate store — the deployment boundary is expected to have
	// already placed the correct PEM pair on disk.
	ClientCertPath       string
	ClientKeyPath        string
	ClientCertThumbprint string
	ClientCertSubject    string

	// ServerCAPath, if set, is a PEM bundle used in place of the system
	// root pool to verify the cluster's server certificate.
	ServerCAPath string

	// APIVersion is appended as the api-version query parameter on
	// every request.
	APIVersion string

	// PollInterval is the interval of the background polling used to detect
	// service-location changes for subscribed services.
	PollInterval time.Duration

	Log logrus.FieldLogger
}

// Client is a registry.Port backed by a Service Fabric-style HTTP
// management API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        logrus.FieldLogger

	mu            sync.Mutex
	endpointIndex int
	subscribed    map[string]context.CancelFunc

	changes chan registry.ChangeEvent
}

var _ registry.Port = (*Client)(nil)

// New builds a Client, loading and validating any client certificate
// CredentialsMode requires.
func New(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("fabricclient: at least one endpoint is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "6.0"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	tlsConfig, err := dial(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
			Timeout:   0, // the resilience pipeline owns per-attempt timing via ctx
		},
		log:        cfg.Log,
		subscribed: make(map[string]context.CancelFunc),
		changes:    make(chan registry.ChangeEvent, 64),
	}, nil
}

// dial builds the TLS configuration for cfg.CredentialsMode, mirroring
// the cluster client's cert-auth contract: load a client keypair from
// disk, build a root pool from ServerCAPath if given, and select the
// identity the configured mode names.
func dial(cfg Config) (*tls.Config, error) {
	if cfg.CredentialsMode == CredentialsNone {
		return nil, nil
	}

	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("fabricclient: ClientCertPath and ClientKeyPath are required for credentials mode %v", cfg.CredentialsMode)
	}

	certificate, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("fabricclient: loading client certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(certificate.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("fabricclient: parsing client certificate: %w", err)
	}

	switch cfg.CredentialsMode {
	case CredentialsByThumbprint:
		if got := thumbprint(leaf); !strings.EqualFold(got, cfg.ClientCertThumbprint) {
			return nil, fmt.Errorf("fabricclient: loaded certificate thumbprint %s does not match configured %s", got, cfg.ClientCertThumbprint)
		}
	case CredentialsBySubject:
		if !strings.Contains(strings.ToLower(leaf.Subject.CommonName), strings.ToLower(cfg.ClientCertSubject)) {
			return nil, fmt.Errorf("fabricclient: loaded certificate subject %q does not contain configured %q", leaf.Subject.CommonName, cfg.ClientCertSubject)
		}
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{certificate},
	}

	if cfg.ServerCAPath != "" {
		pem, err := os.ReadFile(cfg.ServerCAPath)
		if err != nil {
			return nil, fmt.Errorf("fabricclient: reading server CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(pem); !ok {
			return nil, fmt.Errorf("fabricclient: no certificates found in %s", cfg.ServerCAPath)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

func (c *Client) endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep := c.cfg.Endpoints[c.endpointIndex%len(c.cfg.Endpoints)]
	return ep
}

func (c *Client) advanceEndpoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpointIndex++
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.cfg.APIVersion)

	base := c.endpoint()
	u := strings.TrimRight(base, "/") + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", registry.ErrPermanent, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.advanceEndpoint()
		return nil, fmt.Errorf("%w: %v", registry.ErrTransient, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", registry.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return buf.Bytes(), nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: cluster returned %d", registry.ErrTransient, resp.StatusCode)
	case resp.StatusCode == http.StatusRequestTimeout:
		return nil, fmt.Errorf("%w: cluster returned 408", registry.ErrTimeout)
	default:
		return nil, fmt.Errorf("%w: cluster returned %d: %s", registry.ErrPermanent, resp.StatusCode, buf.String())
	}
}

type applicationWire struct {
	ID           string            `json:"Id"`
	Name         string            `json:"Name"`
	TypeName     string            `json:"TypeName"`
	TypeVersion  string            `json:"TypeVersion"`
	Status       string            `json:"Status"`
}

func (c *Client) ListApplications(ctx context.Context) ([]fabric.Application, error) {
	body, err := c.get(ctx, "/Applications", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Items []applicationWire `json:"Items"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding applications: %v", registry.ErrPermanent, err)
	}

	out := make([]fabric.Application, 0, len(envelope.Items))
	for _, it := range envelope.Items {
		out = append(out, fabric.Application{
			Name:        it.Name,
			TypeName:    it.TypeName,
			TypeVersion: it.TypeVersion,
			Status:      parseStatus(it.Status),
		})
	}
	return out, nil
}

func parseStatus(s string) fabric.Status {
	switch strings.ToLower(s) {
	case "ready":
		return fabric.StatusReady
	case "upgrading":
		return fabric.StatusUpgrading
	case "deleting":
		return fabric.StatusDeleting
	default:
		return fabric.StatusOther
	}
}

type serviceWire struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	TypeName    string `json:"ServiceTypeName"`
	ServiceKind string `json:"ServiceKind"`
}

func (c *Client) ListServices(ctx context.Context, applicationName string) ([]fabric.Service, error) {
	path := fmt.Sprintf("/Applications/%s/$/GetServices", url.PathEscape(trimFabricScheme(applicationName)))
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Items []serviceWire `json:"Items"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding services: %v", registry.ErrPermanent, err)
	}

	out := make([]fabric.Service, 0, len(envelope.Items))
	for _, it := range envelope.Items {
		kind := fabric.KindStateless
		if strings.EqualFold(it.ServiceKind, "stateful") {
			kind = fabric.KindStateful
		}
		out = append(out, fabric.Service{
			Name:        it.Name,
			Application: applicationName,
			TypeName:    it.TypeName,
			Kind:        kind,
		})
	}
	return out, nil
}

type partitionWire struct {
	Info struct {
		ID string `json:"Id"`
	} `json:"ServicePartitionInformation"`
	Endpoints []struct {
		Address        string `json:"Address"`
		ReplicaKind    string `json:"Kind"`
	} `json:"Endpoints"`
}

func (c *Client) ResolvePartition(ctx context.Context, serviceName string) (fabric.Partition, error) {
	path := fmt.Sprintf("/Services/%s/$/ResolvePartition", url.PathEscape(trimFabricScheme(serviceName)))
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return fabric.Partition{}, err
	}

	var wire partitionWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return fabric.Partition{}, fmt.Errorf("%w: decoding partition: %v", registry.ErrPermanent, err)
	}

	endpoints := make([]fabric.Endpoint, 0, len(wire.Endpoints))
	for _, ep := range wire.Endpoints {
		endpoints = append(endpoints, fabric.Endpoint{Address: ep.Address})
	}

	return fabric.Partition{ServiceName: serviceName, Endpoints: endpoints}, nil
}

func (c *Client) SubscribeServiceChanges(ctx context.Context, serviceName string, matchPrefix, includeChildren bool) error {
	c.mu.Lock()
	if _, ok := c.subscribed[serviceName]; ok {
		c.mu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	c.subscribed[serviceName] = cancel
	c.mu.Unlock()

	go c.watch(watchCtx, serviceName)
	return nil
}

// watch calls ResolvePartition for serviceName once every PollInterval,
// comparing the primary endpoint observed on each poll to the previous
// one and emitting a ChangeEvent when it differs. It does not use the
// cluster naming API's blocking long-poll; it polls on an interval.
func (c *Client) watch(ctx context.Context, serviceName string) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var lastPrimary string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		partition, err := c.ResolvePartition(ctx, serviceName)
		if err != nil {
			continue
		}
		primary, ok := partition.PrimaryEndpoint()
		if !ok {
			continue
		}
		if lastPrimary != "" && primary.Address != lastPrimary {
			select {
			case c.changes <- registry.ChangeEvent{ServiceName: serviceName}:
			case <-ctx.Done():
				return
			}
		}
		lastPrimary = primary.Address
	}
}

func (c *Client) Changes() <-chan registry.ChangeEvent {
	return c.changes
}

// Close stops every background watcher started by
// SubscribeServiceChanges.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.subscribed {
		cancel()
	}
}

func trimFabricScheme(name string) string {
	n := strings.TrimPrefix(name, "fabric:/")
	n = strings.TrimPrefix(n, "fabric:")
	return strings.Trim(n, "/")
}

func thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw) //#nosec G401 -- matches cluster's conventional cert thumbprint format
	return hex.EncodeToString(sum[:])
}
