package dockerengine

import (
	"strings"
	"testing"
)

func TestSanitizeDockerfileRewritesExposeAndPort(t *testing.T) {
	input := "FROM node:20\nEXPOSE 3000\nENV PORT=3000\nCMD [\"node\", \"server.js\"]\n"
	out := SanitizeDockerfile(input, 4500)

	if !strings.Contains(out, "EXPOSE 4500") {
		t.Fatalf("expected EXPOSE 4500, got:\n%s", out)
	}
	if !strings.Contains(out, "ENV PORT=4500") {
		t.Fatalf("expected ENV PORT=4500, got:\n%s", out)
	}
}

func TestSanitizeDockerfileInjectsPortWhenMissing(t *testing.T) {
	input := "FROM node:20\nEXPOSE 3000\nCMD [\"node\", \"server.js\"]\n"
	out := SanitizeDockerfile(input, 4500)

	if !strings.Contains(out, "ENV PORT=4500") {
		t.Fatalf("expected an injected ENV PORT=4500, got:\n%s", out)
	}
}

func TestSanitizeDockerfileNeutralizesDangerousDirectives(t *testing.T) {
	input := "FROM node:20\nUSER root\nRUN docker run --privileged foo\nVOLUME /var/run/docker.sock\n"
	out := SanitizeDockerfile(input, 4500)

	lines := sanitizedCommentLines(out)
	if len(lines) != 3 {
		t.Fatalf("expected 3 sanitized lines, got %d: %v", len(lines), lines)
	}
	if strings.Contains(out, "\nUSER root\n") {
		t.Fatalf("expected USER root to be commented out, got:\n%s", out)
	}
}

func TestGenerateDockerfileForVite(t *testing.T) {
	out, err := GenerateDockerfile("vite", 80)
	if err != nil {
		t.Fatalf("GenerateDockerfile: %v", err)
	}
	if !strings.Contains(out, "nginx:alpine") {
		t.Fatalf("expected nginx:alpine base image, got:\n%s", out)
	}
}

func TestGenerateDockerfileForBackend(t *testing.T) {
	out, err := GenerateDockerfile("express", 3000)
	if err != nil {
		t.Fatalf("GenerateDockerfile: %v", err)
	}
	if !strings.Contains(out, "oven/bun:alpine") {
		t.Fatalf("expected a bun base image, got:\n%s", out)
	}
}

func TestGenerateDockerfileRejectsUnknownFramework(t *testing.T) {
	if _, err := GenerateDockerfile("rails", 3000); err == nil {
		t.Fatalf("expected an error for an unsupported framework")
	}
}

func TestContainerAndImageNaming(t *testing.T) {
	if got, want := ContainerName("0123456789abcdef"), "thakur-01234567"; got != want {
		t.Fatalf("ContainerName() = %q, want %q", got, want)
	}
	if got, want := ImageTag("0123456789abcdef", "fedcba9876543210"), "thakur-deploy/01234567:fedcba98"; got != want {
		t.Fatalf("ImageTag() = %q, want %q", got, want)
	}
}
