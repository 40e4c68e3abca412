// Package pkgmgr rewrites package-manager commands emitted by project
// configuration (npm/yarn/pnpm) to the bun equivalents the Build Worker and
// Deploy Engine standardize on (spec §6, "Package manager normalization").
// The rewrite is idempotent: running it twice on an already-bun command
// returns the input unchanged.
package pkgmgr

import "strings"

var installPrefixes = []string{"npm install", "npm ci", "yarn install", "yarn", "pnpm install", "pnpm i"}
var runPrefixes = map[string]string{
	"npm run ":  "bun run ",
	"yarn run ": "bun run ",
	"yarn ":     "bun run ",
	"pnpm run ": "bun run ",
}

// RewriteCommand rewrites a single shell command segment, leaving anything
// it does not recognize untouched.
func RewriteCommand(cmd string) string {
	trimmed := strings.TrimSpace(cmd)

	for _, prefix := range installPrefixes {
		// bare "yarn" only matches on its own; "yarn <script>" is a run.
		if trimmed == prefix || (prefix != "yarn" && strings.HasPrefix(trimmed, prefix+" ")) {
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
			if rest == "" {
				return "bun install"
			}
			return "bun install " + rest
		}
	}

	for prefix, replacement := range runPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return replacement + strings.TrimPrefix(trimmed, prefix)
		}
	}

	if trimmed == "npm start" {
		return "bun run start"
	}

	return trimmed
}

// RewriteBuildCommand rewrites every "&&"-joined segment of a project's
// build command, used by the Build Worker before it shells out (spec §4.2,
// "Build command execution").
func RewriteBuildCommand(cmd string) string {
	segments := strings.Split(cmd, "&&")
	rewritten := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		rewritten = append(rewritten, RewriteCommand(seg))
	}
	return strings.Join(rewritten, " && ")
}
