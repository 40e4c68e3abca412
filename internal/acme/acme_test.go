package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestCert(t *testing.T, certDir, domain string, notAfter time.Time) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	domainDir := filepath.Join(certDir, domain)
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		t.Fatal(err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(filepath.Join(domainDir, "fullchain.pem"), certPEM, 0o644); err != nil {
		t.Fatalf("write fullchain.pem: %v", err)
	}
}

func TestKnownDomainsListsCertDirEntries(t *testing.T) {
	certDir := t.TempDir()
	writeTestCert(t, certDir, "widgets.apps.local", time.Now().Add(90*24*time.Hour))
	writeTestCert(t, certDir, "gizmos.apps.local", time.Now().Add(90*24*time.Hour))

	issuer := New(Config{Email: "ops@example.com", CertDir: certDir})

	domains, err := issuer.KnownDomains()
	if err != nil {
		t.Fatalf("KnownDomains: %v", err)
	}

	found := map[string]bool{}
	for _, d := range domains {
		found[d] = true
	}
	if !found["widgets.apps.local"] || !found["gizmos.apps.local"] {
		t.Fatalf("expected both domains listed, got %v", domains)
	}
}

func TestKnownDomainsEmptyWhenCertDirMissing(t *testing.T) {
	issuer := New(Config{Email: "ops@example.com", CertDir: filepath.Join(t.TempDir(), "does-not-exist")})

	domains, err := issuer.KnownDomains()
	if err != nil {
		t.Fatalf("expected no error for a missing cert dir, got: %v", err)
	}
	if len(domains) != 0 {
		t.Fatalf("expected no domains, got %v", domains)
	}
}

func TestRenewIfNeededSkipsFarFromExpiry(t *testing.T) {
	certDir := t.TempDir()
	writeTestCert(t, certDir, "widgets.apps.local", time.Now().Add(90*24*time.Hour))

	issuer := New(Config{Email: "ops@example.com", CertDir: certDir})

	renewed, err := issuer.RenewIfNeeded("widgets.apps.local", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("RenewIfNeeded: %v", err)
	}
	if renewed {
		t.Fatalf("expected no renewal for a certificate 90 days from expiry")
	}
}
