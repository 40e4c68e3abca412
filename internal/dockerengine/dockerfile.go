// Package dockerengine implements the Deploy Engine's container mode (spec
// §4.3, "Container mode"): Dockerfile sanitization/generation, image
// builds, container lifecycle, and image pruning. Grounded on the teacher
// repo's internal/dockerx/moby.go Docker SDK wrapper, generalized from
// glinrdock's generic service containers to shipline's per-project
// build-and-run containers.
package dockerengine

import (
	"fmt"
	"regexp"
	"strings"
)

var exposePattern = regexp.MustCompile(`(?mi)^\s*EXPOSE\s+.*$`)
var envPortPattern = regexp.MustCompile(`(?mi)^\s*ENV\s+PORT[=\s].*$`)
var dangerousLinePattern = regexp.MustCompile(`(?mi)^(.*(?:USER\s+root|--privileged|docker\.sock).*)$`)

// SanitizeDockerfile rewrites a project-supplied Dockerfile so it can't
// escalate privileges or bind to the wrong port (spec §4.3, "Container
// mode", "sanitize"):
//   - any EXPOSE line is replaced with the project's assigned port
//   - any ENV PORT line is rewritten (or one is injected) to the assigned
//     port
//   - USER root, --privileged, and docker.sock references are neutralized
//     with a comment prefix rather than removed, preserving line numbers
//     for anyone debugging the sanitized file
func SanitizeDockerfile(contents string, port int) string {
	out := exposePattern.ReplaceAllString(contents, fmt.Sprintf("EXPOSE %d", port))

	if envPortPattern.MatchString(out) {
		out = envPortPattern.ReplaceAllString(out, fmt.Sprintf("ENV PORT=%d", port))
	} else {
		out = out + fmt.Sprintf("\nENV PORT=%d\n", port)
	}

	out = dangerousLinePattern.ReplaceAllStringFunc(out, func(line string) string {
		return "# sanitized: " + line
	})

	return out
}

// GenerateDockerfile produces a framework-appropriate Dockerfile when a
// project doesn't ship one (spec §4.3, "if no Dockerfile exists, generate
// one per framework").
func GenerateDockerfile(framework string, internalPort int) (string, error) {
	switch framework {
	case "vite":
		return staticNginxDockerfile, nil
	case "nextjs", "express", "hono", "elysia":
		return fmt.Sprintf(bunTwoStageDockerfile, internalPort, internalPort), nil
	default:
		return "", fmt.Errorf("no Dockerfile template for framework %q", framework)
	}
}

const staticNginxDockerfile = `FROM nginx:alpine
COPY dist /usr/share/nginx/html
EXPOSE 80
`

const bunTwoStageDockerfile = `FROM oven/bun:alpine AS build
WORKDIR /app
COPY package.json bun.lockb* ./
RUN bun install
COPY . .
RUN [ -f package.json ] && bun run build || true

FROM oven/bun:alpine
WORKDIR /app
COPY --from=build /app .
ENV PORT=%d
EXPOSE %d
CMD ["bun", "run", "start"]
`

// sanitizedCommentLines strips the sanitization comment markers this
// package writes, used by tests to assert on underlying content.
func sanitizedCommentLines(contents string) []string {
	var lines []string
	for _, line := range strings.Split(contents, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "# sanitized:") {
			lines = append(lines, line)
		}
	}
	return lines
}
