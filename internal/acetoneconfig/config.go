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

// Package acetoneconfig defines the on-disk configuration format for
// acetoned: an ordered registry endpoint list, the identifier location
// mode, mutual-TLS credentials, cache/retry/breaker tunables, and
// admission control. Every sub-struct validates itself and Config.Validate
// joins the results, the same shape as the teacher's Parameters/Validate.
package acetoneconfig

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CredentialsMode names how acetoned authenticates to the cluster
// management endpoints.
type CredentialsMode string

const (
	CredentialsNone         CredentialsMode = "None"
	CredentialsByThumbprint CredentialsMode = "CertificateByThumbprint"
	CredentialsBySubject    CredentialsMode = "CertificateBySubject"
)

// Validate reports whether m is one of the recognized modes.
func (m CredentialsMode) Validate() error {
	switch m {
	case "", CredentialsNone, CredentialsByThumbprint, CredentialsBySubject:
		return nil
	default:
		return fmt.Errorf("invalid CredentialsMode %q", m)
	}
}

// IdentifierLocation names where in an inbound request the application
// identifier is extracted from.
type IdentifierLocation string

const (
	LocationSubdomain            IdentifierLocation = "Subdomain"
	LocationSubdomainPreHyphens  IdentifierLocation = "SubdomainPreHyphens"
	LocationSubdomainPostHyphens IdentifierLocation = "SubdomainPostHyphens"
	LocationFirstPathSegment     IdentifierLocation = "FirstPathSegment"
)

// Validate reports whether l is one of the recognized locations.
func (l IdentifierLocation) Validate() error {
	switch l {
	case "", LocationSubdomain, LocationSubdomainPreHyphens, LocationSubdomainPostHyphens, LocationFirstPathSegment:
		return nil
	default:
		return fmt.Errorf("invalid IdentifierLocation %q", l)
	}
}

// CertParameters holds the client and server certificate material used
// for mutual TLS to the cluster.
type CertParameters struct {
	ClientCertPath       string `yaml:"clientCertPath,omitempty"`
	ClientKeyPath        string `yaml:"clientKeyPath,omitempty"`
	ClientCertThumbprint string `yaml:"clientCertThumbprint,omitempty"`
	ClientCertSubject    string `yaml:"clientCertSubject,omitempty"`
	ServerCAPath         string `yaml:"serverCaPath,omitempty"`
}

// Validate confirms the certificate fields required by mode are
// present. It does not read the files from disk; fabricclient.New does
// that and fails loudly if they are unreadable or malformed.
func (c CertParameters) Validate(mode CredentialsMode) error {
	if mode == "" || mode == CredentialsNone {
		return nil
	}
	if c.ClientCertPath == "" || c.ClientKeyPath == "" {
		return fmt.Errorf("clientCertPath and clientKeyPath are required when credentialsMode is %q", mode)
	}
	if mode == CredentialsByThumbprint && c.ClientCertThumbprint == "" {
		return errors.New("clientCertThumbprint is required when credentialsMode is CertificateByThumbprint")
	}
	if mode == CredentialsBySubject && c.ClientCertSubject == "" {
		return errors.New("clientCertSubject is required when credentialsMode is CertificateBySubject")
	}
	return nil
}

// CacheParameters controls the Tier 3 Partition cache's time-to-live.
type CacheParameters struct {
	// PartitionCacheTTLSeconds is the absolute lifetime of a cached
	// partition entry. Accepts the same vocabulary as
	// internal/durationsetting.Parse when read as a string override from
	// the CLI; as a YAML field it is a plain integer.
	PartitionCacheTTLSeconds int  `yaml:"partitionCacheTtlSeconds,omitempty"`
	DisablePartitionCache    bool `yaml:"disablePartitionCache,omitempty"`
}

func (c CacheParameters) Validate() error {
	if c.PartitionCacheTTLSeconds < 0 {
		return errors.New("partitionCacheTtlSeconds must not be negative")
	}
	return nil
}

// TTL returns the configured partition TTL as a time.Duration.
func (c CacheParameters) TTL() time.Duration {
	return time.Duration(c.PartitionCacheTTLSeconds) * time.Second
}

// ResilienceParameters controls the retry/timeout/circuit-breaker
// pipeline wrapping every registry call.
type ResilienceParameters struct {
	RetryCount        int `yaml:"retryCount,omitempty"`
	InitialRetryDelayMs int `yaml:"initialRetryDelayMs,omitempty"`
	MaxRetryDelayMs     int `yaml:"maxRetryDelayMs,omitempty"`
	PerAttemptTimeoutMs int `yaml:"perAttemptTimeoutMs,omitempty"`

	CircuitBreakerFailureThreshold int `yaml:"circuitBreakerFailureThreshold,omitempty"`
	BreakDurationMs                int `yaml:"breakDurationMs,omitempty"`
	SamplingDurationMs             int `yaml:"samplingDurationMs,omitempty"`
}

func (r ResilienceParameters) Validate() error {
	var errs []error
	if r.RetryCount < 0 {
		errs = append(errs, errors.New("retryCount must not be negative"))
	}
	if r.InitialRetryDelayMs < 0 {
		errs = append(errs, errors.New("initialRetryDelayMs must not be negative"))
	}
	if r.MaxRetryDelayMs < 0 {
		errs = append(errs, errors.New("maxRetryDelayMs must not be negative"))
	}
	if r.MaxRetryDelayMs > 0 && r.InitialRetryDelayMs > r.MaxRetryDelayMs {
		errs = append(errs, errors.New("initialRetryDelayMs must not exceed maxRetryDelayMs"))
	}
	if r.PerAttemptTimeoutMs < 0 {
		errs = append(errs, errors.New("perAttemptTimeoutMs must not be negative"))
	}
	if r.CircuitBreakerFailureThreshold < 0 {
		errs = append(errs, errors.New("circuitBreakerFailureThreshold must not be negative"))
	}
	if r.BreakDurationMs < 0 {
		errs = append(errs, errors.New("breakDurationMs must not be negative"))
	}
	if r.SamplingDurationMs < 0 {
		errs = append(errs, errors.New("samplingDurationMs must not be negative"))
	}
	return errors.Join(errs...)
}

func (r ResilienceParameters) InitialRetryDelay() time.Duration {
	return time.Duration(r.InitialRetryDelayMs) * time.Millisecond
}

func (r ResilienceParameters) MaxRetryDelay() time.Duration {
	return time.Duration(r.MaxRetryDelayMs) * time.Millisecond
}

func (r ResilienceParameters) PerAttemptTimeout() time.Duration {
	return time.Duration(r.PerAttemptTimeoutMs) * time.Millisecond
}

func (r ResilienceParameters) BreakDuration() time.Duration {
	return time.Duration(r.BreakDurationMs) * time.Millisecond
}

func (r ResilienceParameters) SamplingDuration() time.Duration {
	return time.Duration(r.SamplingDurationMs) * time.Millisecond
}

// Config is the top-level acetoned configuration.
type Config struct {
	ClusterEndpoints   []string           `yaml:"clusterEndpoints,omitempty"`
	IdentifierLocation IdentifierLocation `yaml:"identifierLocation,omitempty"`
	CredentialsMode    CredentialsMode    `yaml:"credentialsMode,omitempty"`

	Cert CertParameters `yaml:"cert,omitempty"`

	Cache      CacheParameters      `yaml:"cache,omitempty"`
	Resilience ResilienceParameters `yaml:"resilience,omitempty"`

	MaxConcurrentRequests int `yaml:"maxConcurrentRequests,omitempty"`

	ListenAddress string `yaml:"listenAddress,omitempty"`
	MetricsAddress string `yaml:"metricsAddress,omitempty"`
	HealthAddress  string `yaml:"healthAddress,omitempty"`
}

// Validate checks every field and sub-struct, joining all errors found
// rather than stopping at the first so a misconfigured file reports
// every problem in one pass.
func (c *Config) Validate() error {
	var errs []error

	if len(c.ClusterEndpoints) == 0 {
		errs = append(errs, errors.New("clusterEndpoints must contain at least one endpoint"))
	}
	if err := c.IdentifierLocation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.CredentialsMode.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Cert.Validate(c.CredentialsMode); err != nil {
		errs = append(errs, err)
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Resilience.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxConcurrentRequests < 0 || c.MaxConcurrentRequests > 1000 {
		errs = append(errs, errors.New("maxConcurrentRequests must be between 1 and 1000"))
	}

	return errors.Join(errs...)
}

// Defaults returns the configuration spec.md §6 lists as the recognized
// defaults. Defaulted layers a parsed Config's explicitly-set fields
// over this baseline.
func Defaults() Config {
	return Config{
		IdentifierLocation: LocationSubdomain,
		CredentialsMode:    CredentialsNone,
		Cache: CacheParameters{
			PartitionCacheTTLSeconds: 30,
			DisablePartitionCache:    false,
		},
		Resilience: ResilienceParameters{
			RetryCount:                     10,
			InitialRetryDelayMs:            100,
			MaxRetryDelayMs:                2000,
			PerAttemptTimeoutMs:            5000,
			CircuitBreakerFailureThreshold: 5,
			BreakDurationMs:                30000,
			SamplingDurationMs:             60000,
		},
		MaxConcurrentRequests: 100,
		ListenAddress:         ":8080",
		MetricsAddress:        ":8081",
		HealthAddress:         ":8082",
	}
}

// Defaulted returns a copy of c with every zero-valued field replaced by
// Defaults(). Slice and non-zero-struct fields are left as c set them.
func (c Config) Defaulted() Config {
	d := Defaults()
	out := c

	if len(out.ClusterEndpoints) == 0 {
		out.ClusterEndpoints = d.ClusterEndpoints
	}
	if out.IdentifierLocation == "" {
		out.IdentifierLocation = d.IdentifierLocation
	}
	if out.CredentialsMode == "" {
		out.CredentialsMode = d.CredentialsMode
	}
	if out.Cache.PartitionCacheTTLSeconds == 0 && !out.Cache.DisablePartitionCache {
		out.Cache.PartitionCacheTTLSeconds = d.Cache.PartitionCacheTTLSeconds
	}
	if out.Resilience.RetryCount == 0 {
		out.Resilience.RetryCount = d.Resilience.RetryCount
	}
	if out.Resilience.InitialRetryDelayMs == 0 {
		out.Resilience.InitialRetryDelayMs = d.Resilience.InitialRetryDelayMs
	}
	if out.Resilience.MaxRetryDelayMs == 0 {
		out.Resilience.MaxRetryDelayMs = d.Resilience.MaxRetryDelayMs
	}
	if out.Resilience.PerAttemptTimeoutMs == 0 {
		out.Resilience.PerAttemptTimeoutMs = d.Resilience.PerAttemptTimeoutMs
	}
	if out.Resilience.CircuitBreakerFailureThreshold == 0 {
		out.Resilience.CircuitBreakerFailureThreshold = d.Resilience.CircuitBreakerFailureThreshold
	}
	if out.Resilience.BreakDurationMs == 0 {
		out.Resilience.BreakDurationMs = d.Resilience.BreakDurationMs
	}
	if out.Resilience.SamplingDurationMs == 0 {
		out.Resilience.SamplingDurationMs = d.Resilience.SamplingDurationMs
	}
	if out.MaxConcurrentRequests == 0 {
		out.MaxConcurrentRequests = d.MaxConcurrentRequests
	}
	if out.ListenAddress == "" {
		out.ListenAddress = d.ListenAddress
	}
	if out.MetricsAddress == "" {
		out.MetricsAddress = d.MetricsAddress
	}
	if out.HealthAddress == "" {
		out.HealthAddress = d.HealthAddress
	}
	return out
}

// Parse reads a YAML configuration document. Unset fields are left
// zero-valued; callers combine the result with Defaulted() once CLI
// flag overrides, if any, have also been applied.
func Parse(in io.Reader) (*Config, error) {
	var conf Config
	decoder := yaml.NewDecoder(in)
	decoder.KnownFields(true)

	if err := decoder.Decode(&conf); err != nil {
		if err != io.EOF {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	conf.IdentifierLocation = IdentifierLocation(strings.TrimSpace(string(conf.IdentifierLocation)))
	conf.CredentialsMode = CredentialsMode(strings.TrimSpace(string(conf.CredentialsMode)))

	return &conf, nil
}
