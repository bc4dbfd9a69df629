package httpc

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	h := &Httpc{}
	body, err := h.Fetch(context.Background(), srv.URL+"/seed.json")
	if err != nil || string(body) != `{"data":[]}` {
		t.Fatalf("Fetch => %q, %v", body, err)
	}
	if _, err := h.Fetch(context.Background(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestInsecureAllowsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := (&Httpc{}).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error without insecure TLS, got nil")
	}
	if body, err := (&Httpc{Insecure: true}).Fetch(context.Background(), srv.URL); err != nil || string(body) != "ok" {
		t.Fatalf("insecure fetch => %q, %v", body, err)
	}
}

func TestTLSConfigApplied(t *testing.T) {
	c := (&Httpc{MinTLS: "1.3"}).New()
	tr, _ := c.GetClient().Transport.(*http.Transport)
	if tr == nil || tr.TLSClientConfig == nil || tr.TLSClientConfig.MinVersion != tls.VersionTLS13 {
		t.Fatalf("expected TLS 1.3 minimum")
	}
}

func TestParseTLSVersion(t *testing.T) {
	tests := map[string]uint16{
		"":       0,
		"1.2":    tls.VersionTLS12,
		"tls1.3": tls.VersionTLS13,
		"TLS13":  tls.VersionTLS13,
		"v1.1":   tls.VersionTLS11,
		"weird":  0,
	}
	for in, want := range tests {
		if got := parseTLSVersion(in); got != want {
			t.Fatalf("parseTLSVersion(%q)=%v, want %v", in, got, want)
		}
	}
}

func FuzzParseTLSVersion(f *testing.F) {
	f.Add("")
	f.Add("1.2")
	f.Add("tls1.3")
	f.Add("weird-input!!")
	f.Fuzz(func(t *testing.T, s string) {
		v := parseTLSVersion(s)
		if v != 0 && v != tls.VersionTLS10 && v != tls.VersionTLS11 && v != tls.VersionTLS12 && v != tls.VersionTLS13 {
			t.Fatalf("unexpected tls version: %v", v)
		}
	})
}
