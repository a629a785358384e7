// Package exclude implements the exclusion engine of spec.md §4.4: glob
// pattern matching, the CACHEDIR.TAG convention, and (on platforms that
// support it) pseudo-filesystem detection via statfs magic numbers.
//
// The walker in package walk calls these in the order §4.4 specifies;
// this package only decides, it never recurses or mutates the tree.
package exclude

import (
	"io"
	"os"
	"path"
	"strings"
)

// cacheDirSignature is the first 43 bytes every CACHEDIR.TAG must start
// with per the Cache Directory Tagging Specification (§4.4 step 6).
const cacheDirSignature = "Signature: 8a477f597d28d172789f06886806bc55"

// MatchesPattern reports whether p, or any of its trailing-suffix
// rotations taken after each '/', matches one of patterns. For
// "/a/b/c.tmp" the rotations tried are "/a/b/c.tmp", "a/b/c.tmp",
// "b/c.tmp" and "c.tmp" — this lets a pattern like "*.tmp" or "node_modules" match
// regardless of how deep the entry sits.
//
// Matching uses path.Match, whose shell-style wildcard language
// (*, ?, [...]) is the fnmatch semantics §6 requires; no third-party glob
// library is vendored anywhere in this module's lineage, so the standard
// library is the correct tool here (see DESIGN.md).
func MatchesPattern(p string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, rotation := range rotations(p) {
		for _, pat := range patterns {
			if ok, err := path.Match(pat, rotation); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// rotations returns p followed by each trailing suffix after a '/'.
func rotations(p string) []string {
	out := make([]string, 0, strings.Count(p, "/")+1)
	out = append(out, p)
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && i+1 < len(p) {
			out = append(out, p[i+1:])
		}
	}
	return out
}

// HasCacheDirTag reports whether dir contains a CACHEDIR.TAG file whose
// first 43 bytes match the required signature. A missing file, a short
// file, or a mismatched signature all report false with no error, as does
// an I/O error while reading it; only a failure to open the file other
// than "not found" is returned.
func HasCacheDirTag(dir string) (bool, error) {
	f, err := os.Open(path.Join(dir, "CACHEDIR.TAG"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	buf := make([]byte, len(cacheDirSignature))
	n, err := io.ReadFull(f, buf)
	if err != nil {
		// Shorter than the signature, or an I/O error partway through:
		// either way it cannot match.
		return false, nil
	}
	return string(buf[:n]) == cacheDirSignature, nil
}
