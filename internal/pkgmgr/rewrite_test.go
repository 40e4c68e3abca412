package pkgmgr

import "testing"

func TestRewriteCommandTranslatesPackageManagers(t *testing.T) {
	cases := map[string]string{
		"npm install":       "bun install",
		"npm ci":            "bun install",
		"yarn install":      "bun install",
		"yarn":              "bun install",
		"pnpm install":      "bun install",
		"npm run build":     "bun run build",
		"yarn build":        "bun run build",
		"pnpm run build":    "bun run build",
		"npm start":         "bun run start",
		"bun install":       "bun install",
		"echo hello":        "echo hello",
	}
	for in, want := range cases {
		if got := RewriteCommand(in); got != want {
			t.Errorf("RewriteCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRewriteCommandIsIdempotent(t *testing.T) {
	for _, cmd := range []string{"npm install", "yarn build", "pnpm run build"} {
		once := RewriteCommand(cmd)
		twice := RewriteCommand(once)
		if once != twice {
			t.Errorf("rewrite not idempotent for %q: %q != %q", cmd, once, twice)
		}
	}
}

func TestRewriteBuildCommandJoinsSegments(t *testing.T) {
	got := RewriteBuildCommand("npm install && npm run build")
	want := "bun install && bun run build"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
