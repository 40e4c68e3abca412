// Package validate implements the Control Plane's input-validation rules:
// the build_command allow-list and subdomain acceptance (spec §4.1, §8).
package validate

import (
	"fmt"
	"strings"
)

var allowedCommandPrefixes = []string{"npm", "yarn", "pnpm", "bun", "echo", "ls"}

var forbiddenSubstrings = []string{
	"rm -rf", "sudo", "wget", "curl", "eval", "|", ";", ">", "<",
	"/etc/passwd", "/etc/shadow", "/bin/sh", "/bin/bash",
}

// BuildCommand checks a project's build_command against the allow-list
// before it is persisted. Each "&&"-separated, whitespace-trimmed segment
// must start with an allowed package-manager or shell-builtin token, and the
// whole string must not contain any forbidden substring.
func BuildCommand(cmd string) error {
	for _, bad := range forbiddenSubstrings {
		if strings.Contains(cmd, bad) {
			return fmt.Errorf("build command contains disallowed token %q", bad)
		}
	}

	segments := strings.Split(cmd, "&&")
	sawSegment := false
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		sawSegment = true

		allowed := false
		for _, prefix := range allowedCommandPrefixes {
			if seg == prefix || strings.HasPrefix(seg, prefix+" ") {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("build command segment %q does not start with an allowed command", seg)
		}
	}

	if !sawSegment {
		return fmt.Errorf("build command must not be empty")
	}

	return nil
}
