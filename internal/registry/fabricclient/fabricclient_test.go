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

package fabricclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/acetone-proxy/acetone/internal/fabric"
	"github.com/acetone-proxy/acetone/internal/registry"
)

func TestListApplicationsParsesWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Applications" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[{"Name":"fabric:/Guard","TypeName":"GuardType","TypeVersion":"1.0.0","Status":"Ready"}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoints: []string{srv.URL}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	apps, err := c.ListApplications(context.Background())
	if err != nil {
		t.Fatalf("ListApplications: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("expected 1 application, got %d", len(apps))
	}
	want := fabric.Application{Name: "fabric:/Guard", TypeName: "GuardType", TypeVersion: "1.0.0", Status: fabric.StatusReady}
	if apps[0] != want {
		t.Fatalf("got %+v, want %+v", apps[0], want)
	}
}

func TestGetClassifiesServerErrorsAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoints: []string{srv.URL}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.ListApplications(context.Background())
	if !errors.Is(err, registry.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestGetClassifiesClientErrorsAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoints: []string{srv.URL}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.ListApplications(context.Background())
	if !errors.Is(err, registry.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestResolvePartitionParsesEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Endpoints":[{"Address":"http://10.0.0.5:8080","Kind":"Primary"}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoints: []string{srv.URL}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p, err := c.ResolvePartition(context.Background(), "fabric:/Guard/GuardApi")
	if err != nil {
		t.Fatalf("ResolvePartition: %v", err)
	}
	ep, ok := p.PrimaryEndpoint()
	if !ok || ep.Address != "http://10.0.0.5:8080" {
		t.Fatalf("got %+v", p)
	}
}

func TestNewRejectsMissingCertForMutualTLS(t *testing.T) {
	_, err := New(Config{
		Endpoints:       []string{"https://cluster.example.com:19080"},
		CredentialsMode: CredentialsByThumbprint,
	})
	if err == nil {
		t.Fatal("expected error when ClientCertPath/ClientKeyPath are unset")
	}
}
