package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"remitlend/crypto"
)

func TestKeygenThenAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.keystore")
	var out bytes.Buffer
	if err := runKeygen([]string{"-keystore", path}, &out); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if !strings.Contains(out.String(), "Address: ") {
		t.Fatalf("unexpected keygen output %q", out.String())
	}
	if err := runKeygen([]string{"-keystore", path}, &out); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}

	var addrOut bytes.Buffer
	if err := runAddress([]string{"-keystore", path}, &addrOut); err != nil {
		t.Fatalf("address: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(addrOut.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected address output %q", addrOut.String())
	}
	if _, err := crypto.ParseAddress(lines[0]); err != nil {
		t.Fatalf("address does not parse: %v", err)
	}
	if !strings.Contains(out.String(), lines[0]) {
		t.Fatalf("keygen and address disagree: %q vs %q", out.String(), lines[0])
	}
}

func TestTokenRequiresSecret(t *testing.T) {
	subject := crypto.ModuleAddress("tester").String()
	t.Setenv("REMITCTL_TEST_SECRET", "0123456789abcdef0123456789abcdef")

	var out bytes.Buffer
	if err := runToken([]string{"-subject", subject, "-scopes", "lender,borrower", "-secret-env", "REMITCTL_TEST_SECRET"}, &out); err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.Count(strings.TrimSpace(out.String()), ".") != 2 {
		t.Fatalf("expected a compact jwt, got %q", out.String())
	}
	if err := runToken([]string{"-subject", subject, "-secret-env", "REMITCTL_UNSET_SECRET"}, &out); err == nil {
		t.Fatalf("expected missing secret error")
	}
	if err := runToken([]string{"-subject", "nope", "-secret-env", "REMITCTL_TEST_SECRET"}, &out); err == nil {
		t.Fatalf("expected bad subject error")
	}
}

func TestCheckGenesisCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	var out bytes.Buffer
	if err := runCheckGenesis([]string{"-genesis", path}, &out); err != nil {
		t.Fatalf("check genesis: %v", err)
	}
	if !strings.Contains(out.String(), "operators=1") {
		t.Fatalf("unexpected summary %q", out.String())
	}
}

func TestPoolPrintsSummary(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pool" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"asset":"USDC","totalLiquidity":"1000","totalBorrowed":"100","availableLiquidity":"900","utilizationBps":1000,"maxUtilizationBps":9000}`))
	}))
	defer ts.Close()

	var out bytes.Buffer
	if err := runPool([]string{"-url", ts.URL}, &out); err != nil {
		t.Fatalf("pool: %v", err)
	}
	if !strings.Contains(out.String(), "utilization: 1000/9000 bps") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
