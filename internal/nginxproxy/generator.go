// Package nginxproxy generates and reloads nginx reverse-proxy
// configuration for project subdomains. Ported from the teacher repo's
// internal/nginx/generator.go and reload.go, narrowed from the teacher's
// multi-route-per-domain model to shipline's one-subdomain-one-project
// model (spec §4.3, "Reverse proxy").
package nginxproxy

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"text/template"
)

const vhostTemplate = `# managed by shipline deploy engine, do not edit by hand
upstream {{upstreamName .Subdomain}} {
    server 127.0.0.1:{{.Port}};
}

server {
    listen 80;
    server_name {{.Domain}};

    location ^~ /.well-known/acme-challenge/ {
        root {{.ACMEChallengeDir}};
        try_files $uri =404;
    }

    {{- if .TLS}}
    listen 443 ssl http2;

    ssl_certificate {{.CertPath}};
    ssl_certificate_key {{.KeyPath}};
    ssl_protocols TLSv1.2 TLSv1.3;
    ssl_ciphers ECDHE-RSA-AES256-GCM-SHA384:ECDHE-RSA-AES128-GCM-SHA256:ECDHE-RSA-CHACHA20-POLY1305;
    ssl_prefer_server_ciphers off;
    ssl_session_cache shared:SSL:10m;
    ssl_session_timeout 10m;

    add_header Strict-Transport-Security "max-age=31536000; includeSubDomains" always;
    add_header X-Content-Type-Options nosniff always;
    add_header X-Frame-Options DENY always;

    if ($scheme = http) {
        return 301 https://$server_name$request_uri;
    }
    {{- end}}

    proxy_connect_timeout 300s;
    proxy_send_timeout 300s;
    proxy_read_timeout 300s;
    proxy_redirect off;

    location / {
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_pass http://{{upstreamName .Subdomain}};
    }
}
`

// VHost is one project's rendered vhost input.
type VHost struct {
	Subdomain        string
	Domain           string
	Port             int
	TLS              bool
	CertPath         string
	KeyPath          string
	ACMEChallengeDir string
}

var parsedTemplate = template.Must(template.New("vhost").Funcs(template.FuncMap{
	"upstreamName": UpstreamName,
}).Parse(vhostTemplate))

// UpstreamName derives a deterministic nginx upstream block name from a
// project's subdomain.
func UpstreamName(subdomain string) string {
	return fmt.Sprintf("app_%s", subdomain)
}

// Render produces a vhost config and its content hash (used to skip a
// reload when nothing actually changed).
func Render(v VHost) (config string, hash string, err error) {
	var buf bytes.Buffer
	if err := parsedTemplate.Execute(&buf, v); err != nil {
		return "", "", fmt.Errorf("render vhost template: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return buf.String(), fmt.Sprintf("%x", sum), nil
}
