package remote

import (
	"strings"

	"github.com/alessio/shellescape"
)

// splitTilde reports whether base is relative to the remote home ("~" or
// "~/x") and returns the part after "~/".
func splitTilde(base string) (bool, string) {
	if base == "~" {
		return true, ""
	}
	if strings.HasPrefix(base, "~/") {
		return true, strings.TrimLeft(base[2:], "/")
	}
	return false, base
}

// joinBase appends dir to base with exactly one separator.
func joinBase(base, dir string) string {
	return strings.TrimRight(base, "/") + "/" + dir
}

// testDirScript prints OK when dir exists on the remote, MISSING otherwise.
// A "~" base is entered with cd so the remote shell expands it.
func testDirScript(dir string) string {
	if tilde, rest := splitTilde(dir); tilde {
		if rest == "" {
			rest = "."
		}
		return "cd ~ && test -d " + shellescape.Quote(rest) + " && echo OK || echo MISSING"
	}
	return "test -d " + shellescape.Quote(dir) + " && echo OK || echo MISSING"
}

// listScript prints one directory name per line for entries of base that
// start with prefix. An empty prefix lists every directory. No match prints
// nothing and exits 0; a base that cannot be entered or read exits non-zero.
func listScript(base, prefix string) string {
	glob := "*"
	if prefix != "" {
		glob = shellescape.Quote(prefix) + "*"
	}
	return cdScript(base) + ` && test -r . && for d in ` + glob +
		`; do if [ -d "$d" ]; then printf '%s\n' "$d"; fi; done`
}

// cdScript enters base on the remote, letting the remote shell expand "~".
func cdScript(base string) string {
	tilde, rest := splitTilde(base)
	if !tilde {
		if dir := strings.TrimRight(base, "/"); dir != "" {
			return "cd " + shellescape.Quote(dir)
		}
		return "cd /"
	}
	if rest = strings.TrimRight(rest, "/"); rest == "" {
		return "cd ~"
	}
	return "cd ~ && cd " + shellescape.Quote(rest)
}

// parseListing splits command output into non-empty lines. Names are kept
// verbatim apart from a trailing carriage return.
func parseListing(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSuffix(line, "\r"); line != "" {
			names = append(names, line)
		}
	}
	return names
}

// hasPrefixAll keeps the names that start with prefix.
func hasPrefixAll(names []string, prefix string) []string {
	if prefix == "" {
		return names
	}
	kept := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			kept = append(kept, n)
		}
	}
	return kept
}
