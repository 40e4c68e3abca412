package deployagent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Runtime describes how a build's artifact should be served once extracted.
type Runtime struct {
	// NeedsStaticServer is true for builds that ship only static assets
	// (vite, next export) rather than a long-running backend process.
	NeedsStaticServer bool
	// StaticRoot is the directory static assets are served from, relative
	// to the build directory (spec §4.3 step 5: "dist/" for vite, "out/"
	// for a Next.js static export).
	StaticRoot string
	// EntryFile is the resolved backend entry point, empty for static
	// runtimes or when none could be resolved (falls back to "bun run
	// start").
	EntryFile string
	// StartCommand overrides the framework's default start command when
	// set (e.g. Next.js's "bun run start -- --port <port>").
	StartCommand string
}

// devOrStartScriptPattern extracts an entry file from a package.json
// "dev"/"start" script invoking bun/node/tsx/ts-node/nodemon (spec §4.3
// step 6).
var devOrStartScriptPattern = regexp.MustCompile(`(?:bun|node|tsx|ts-node|nodemon)\s+(?:run\s+)?(?:watch\s+)?(\S+\.(?:ts|js))`)

// fallbackEntryCandidates is scanned, in order, when package.json yields no
// usable entry point (spec §4.3 step 6).
var fallbackEntryCandidates = []string{
	"src/index.ts", "src/index.js",
	"src/server.ts", "src/server.js",
	"index.ts", "index.js",
	"server.ts", "server.js",
	"src/app.ts", "src/app.js",
}

type packageJSON struct {
	Main    string            `json:"main"`
	Scripts map[string]string `json:"scripts"`
}

// resolveRuntime dispatches on framework to decide whether buildDir is
// served statically or launched as a backend process, per spec §4.3 steps
// 5-6 ("Framework dispatch" / "Backend start resolution").
func resolveRuntime(framework, buildDir string) (*Runtime, error) {
	switch framework {
	case "vite":
		return &Runtime{NeedsStaticServer: true, StaticRoot: "dist"}, nil
	case "nextjs":
		if dirExists(filepath.Join(buildDir, "out")) {
			return &Runtime{NeedsStaticServer: true, StaticRoot: "out"}, nil
		}
		return &Runtime{StartCommand: "bun run start -- --port"}, nil
	case "express", "hono", "elysia":
		entry := resolveBackendEntry(buildDir)
		return &Runtime{EntryFile: entry}, nil
	default:
		return nil, fmt.Errorf("unsupported framework %q", framework)
	}
}

// resolveBackendEntry implements spec §4.3 step 6's priority chain:
// scripts.dev -> main -> dist-to-src equivalent of main -> scripts.start ->
// a fixed scan of conventional entry paths. Returns "" when nothing
// resolves, signaling the caller to fall back to "bun run start".
func resolveBackendEntry(buildDir string) string {
	pkg := readPackageJSON(buildDir)

	if pkg != nil {
		if entry := matchScriptEntry(pkg.Scripts["dev"]); entry != "" && fileExists(buildDir, entry) {
			return entry
		}
		if pkg.Main != "" && fileExists(buildDir, pkg.Main) {
			return pkg.Main
		}
		if pkg.Main != "" {
			if srcEquivalent := distMainToSrc(pkg.Main); srcEquivalent != "" && fileExists(buildDir, srcEquivalent) {
				return srcEquivalent
			}
		}
		if entry := matchScriptEntry(pkg.Scripts["start"]); entry != "" && fileExists(buildDir, entry) {
			return entry
		}
	}

	for _, candidate := range fallbackEntryCandidates {
		if fileExists(buildDir, candidate) {
			return candidate
		}
	}

	return ""
}

func readPackageJSON(buildDir string) *packageJSON {
	data, err := os.ReadFile(filepath.Join(buildDir, "package.json"))
	if err != nil {
		return nil
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}
	return &pkg
}

func matchScriptEntry(script string) string {
	if script == "" {
		return ""
	}
	m := devOrStartScriptPattern.FindStringSubmatch(script)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// distMainToSrc converts a compiled entry like "dist/index.js" to its
// likely source counterpart "src/index.ts" (spec §4.3 step 6).
func distMainToSrc(main string) string {
	if !strings.Contains(main, "dist/") {
		return ""
	}
	src := strings.Replace(main, "dist/", "src/", 1)
	if strings.HasSuffix(src, ".js") {
		src = strings.TrimSuffix(src, ".js") + ".ts"
	}
	return src
}

func fileExists(buildDir, rel string) bool {
	info, err := os.Stat(filepath.Join(buildDir, rel))
	return err == nil && !info.IsDir()
}
