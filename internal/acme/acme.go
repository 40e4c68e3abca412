// Package acme issues TLS certificates for project subdomains via ACME
// HTTP-01 challenges, using go-acme/lego/v4. Ported from the teacher
// repo's internal/tls/acme.go, narrowed to HTTP-01 only (DNS-01 and its
// per-provider plumbing are not in scope, spec §4.3 Non-goals) and to a
// single file-based certificate store instead of the teacher's per-domain
// Postgres table.
package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/http/webroot"
	"github.com/go-acme/lego/v4/registration"
)

// Issuer issues and persists certificates under certDir, one subdirectory
// per domain.
type Issuer struct {
	email        string
	directoryURL string
	challengeDir string
	certDir      string
}

// Config configures an Issuer.
type Config struct {
	Email        string
	DirectoryURL string
	ChallengeDir string
	CertDir      string
}

// New builds an Issuer from cfg.
func New(cfg Config) *Issuer {
	return &Issuer{
		email:        cfg.Email,
		directoryURL: cfg.DirectoryURL,
		challengeDir: cfg.ChallengeDir,
		certDir:      cfg.CertDir,
	}
}

// Enabled reports whether an ACME email was configured. Deploy Engine
// skips certificate issuance entirely when it wasn't (spec §4.3, "TLS is
// opt-in").
func (i *Issuer) Enabled() bool {
	return i.email != ""
}

type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// Result is an issued certificate's file locations.
type Result struct {
	Domain      string
	CertPath    string
	PrivKeyPath string
}

// Issue obtains a certificate for domain via HTTP-01 and writes it under
// certDir/<domain>/{fullchain.pem,privkey.pem}.
func (i *Issuer) Issue(domain string) (*Result, error) {
	if !i.Enabled() {
		return nil, fmt.Errorf("acme: no ACME_EMAIL configured, issuance disabled")
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	user := &acmeUser{email: i.email, key: privateKey}

	config := lego.NewConfig(user)
	config.CADirURL = i.directoryURL

	client, err := lego.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create acme client: %w", err)
	}

	if err := os.MkdirAll(i.challengeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create http-01 challenge dir: %w", err)
	}
	httpProvider, err := webroot.NewHTTPProvider(i.challengeDir)
	if err != nil {
		return nil, fmt.Errorf("configure http-01 webroot: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(httpProvider); err != nil {
		return nil, fmt.Errorf("configure http-01 challenge: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("register acme account: %w", err)
	}
	user.registration = reg

	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("obtain certificate for %s: %w", domain, err)
	}

	domainDir := filepath.Join(i.certDir, domain)
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cert directory: %w", err)
	}

	certPath := filepath.Join(domainDir, "fullchain.pem")
	keyPath := filepath.Join(domainDir, "privkey.pem")

	if err := os.WriteFile(certPath, res.Certificate, 0o644); err != nil {
		return nil, fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, res.PrivateKey, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}

	return &Result{Domain: domain, CertPath: certPath, PrivKeyPath: keyPath}, nil
}

// Exists reports whether a certificate has already been issued for domain.
func (i *Issuer) Exists(domain string) bool {
	_, err := os.Stat(filepath.Join(i.certDir, domain, "fullchain.pem"))
	return err == nil
}

// CertPaths returns where Issue writes (or already wrote) domain's
// certificate and private key, regardless of whether issuance has run yet.
func (i *Issuer) CertPaths(domain string) (certPath, keyPath string) {
	domainDir := filepath.Join(i.certDir, domain)
	return filepath.Join(domainDir, "fullchain.pem"), filepath.Join(domainDir, "privkey.pem")
}

// KnownDomains lists every domain with a certificate directory under
// certDir, used by the renewal sweep to find what it needs to check.
func (i *Issuer) KnownDomains() ([]string, error) {
	entries, err := os.ReadDir(i.certDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cert dir: %w", err)
	}

	var domains []string
	for _, e := range entries {
		if e.IsDir() {
			domains = append(domains, e.Name())
		}
	}
	return domains, nil
}

// RenewIfNeeded re-issues domain's certificate when it expires within
// within, reporting whether a renewal was performed (spec §4.3's periodic
// maintenance, "daily certificate renewal sweep").
func (i *Issuer) RenewIfNeeded(domain string, within time.Duration) (bool, error) {
	certPath, _ := i.CertPaths(domain)

	data, err := os.ReadFile(certPath)
	if err != nil {
		return false, fmt.Errorf("read certificate for %s: %w", domain, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return false, fmt.Errorf("decode certificate for %s: no PEM block found", domain)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false, fmt.Errorf("parse certificate for %s: %w", domain, err)
	}

	if time.Until(cert.NotAfter) > within {
		return false, nil
	}

	if _, err := i.Issue(domain); err != nil {
		return false, fmt.Errorf("renew certificate for %s: %w", domain, err)
	}
	return true, nil
}
