// Package config loads per-service configuration from environment variables,
// following the teacher repo's flat getEnv/getBoolEnv pattern (no config
// files, no flags).
package config

import (
	"os"
	"strconv"
	"strings"
)

// ControlPlane holds the Control Plane process's environment configuration.
type ControlPlane struct {
	HTTPAddr               string
	DatabaseURL            string
	RedisURL               string
	EncryptionKey          string
	GitHubAppID            string
	GitHubAppPrivateKeyPath string
	GitHubWebhookSecret    string
	GitHubClientID         string
	GitHubClientSecret     string
	ClientURL              string
	DeployEngineURL        string
	BuildWorkerURL         string
	AdminToken             string
	BaseDomain             string
	Environment            string
	CORSOrigins            []string
	LogLevel               string
}

// LoadControlPlane reads Control Plane configuration from the environment.
func LoadControlPlane() *ControlPlane {
	return &ControlPlane{
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379/0"),
		EncryptionKey:           getEnv("ENCRYPTION_KEY", ""),
		GitHubAppID:             getEnv("GITHUB_APP_ID", ""),
		GitHubAppPrivateKeyPath: getEnv("GITHUB_APP_PRIVATE_KEY_PATH", ""),
		GitHubWebhookSecret:     getEnv("GITHUB_WEBHOOK_SECRET", ""),
		GitHubClientID:          getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret:      getEnv("GITHUB_CLIENT_SECRET", ""),
		ClientURL:               getEnv("CLIENT_URL", ""),
		DeployEngineURL:         getEnv("DEPLOY_ENGINE_URL", "http://localhost:8082"),
		BuildWorkerURL:          getEnv("BUILD_WORKER_URL", "http://localhost:8081"),
		AdminToken:              getEnv("CONTROL_PLANE_ADMIN_TOKEN", ""),
		BaseDomain:              getEnv("BASE_DOMAIN", "apps.local"),
		Environment:             getEnv("NODE_ENV", "development"),
		CORSOrigins:             getListEnv("CORS_ORIGINS"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
	}
}

// BuildWorker holds the Build Worker process's environment configuration.
type BuildWorker struct {
	HTTPAddr                string
	ControlAPIURL           string
	DeployEngineURL         string
	RedisURL                string
	GitHubAppID             string
	GitHubAppPrivateKeyPath string
	WorkspaceRoot           string
	LogLevel                string
}

// LoadBuildWorker reads Build Worker configuration from the environment.
func LoadBuildWorker() *BuildWorker {
	return &BuildWorker{
		HTTPAddr:                getEnv("HTTP_ADDR", ":8081"),
		ControlAPIURL:           getEnv("CONTROL_API_URL", "http://localhost:8080"),
		DeployEngineURL:         getEnv("DEPLOY_ENGINE_URL", "http://localhost:8082"),
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379/0"),
		GitHubAppID:             getEnv("GITHUB_APP_ID", ""),
		GitHubAppPrivateKeyPath: getEnv("GITHUB_APP_PRIVATE_KEY_PATH", ""),
		WorkspaceRoot:           getEnv("WORKSPACE_ROOT", os.TempDir()),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
	}
}

// DeployEngine holds the Deploy Engine process's environment configuration.
type DeployEngine struct {
	HTTPAddr        string
	ControlAPIURL   string
	BaseDomain      string
	ArtifactsDir    string
	AppsDir         string
	NodeEnv         string
	UseDocker       bool
	NginxSitesDir    string
	NginxEnabledDir  string
	ACMEEmail        string
	ACMEDirectoryURL string
	ACMEChallengeDir string
	ACMECertDir      string
	LogLevel         string
}

// LoadDeployEngine reads Deploy Engine configuration from the environment.
func LoadDeployEngine() *DeployEngine {
	return &DeployEngine{
		HTTPAddr:         getEnv("PORT", ":8082"),
		ControlAPIURL:    getEnv("CONTROL_API_URL", "http://localhost:8080"),
		BaseDomain:       getEnv("BASE_DOMAIN", "apps.local"),
		ArtifactsDir:     getEnv("ARTIFACTS_DIR", "/tmp/deploy-artifacts"),
		AppsDir:          getEnv("APPS_DIR", "./apps"),
		NodeEnv:          getEnv("NODE_ENV", "development"),
		UseDocker:        getBoolEnv("USE_DOCKER", false),
		NginxSitesDir:    getEnv("NGINX_SITES_DIR", "/etc/nginx/sites-available"),
		NginxEnabledDir:  getEnv("NGINX_ENABLED_DIR", "/etc/nginx/sites-enabled"),
		ACMEEmail:        getEnv("ACME_EMAIL", ""),
		ACMEDirectoryURL: getEnv("ACME_DIRECTORY_URL", "https://acme-v02.api.letsencrypt.org/directory"),
		ACMEChallengeDir: getEnv("ACME_CHALLENGE_DIR", "/var/www/acme-challenge"),
		ACMECertDir:      getEnv("ACME_CERT_DIR", "/etc/shipline/certs"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
