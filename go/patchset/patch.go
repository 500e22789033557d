package patchset

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const devNull = "/dev/null"

// changePairs extracts the ordered (from, to) file header pairs from a
// mailed patch: each `--- ` line and the `+++ ` line that follows it.
func changePairs(path string) ([]ChangePair, error) {
	var f, err = os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pairs []ChangePair
	var pending *string
	var scanner = bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line = scanner.Text()
		switch {
		case strings.HasPrefix(line, "--- "):
			var from = strings.TrimSpace(line[len("--- "):])
			pending = &from
		case strings.HasPrefix(line, "+++ "):
			if pending == nil {
				continue
			}
			pairs = append(pairs, ChangePair{
				From: *pending,
				To:   strings.TrimSpace(line[len("+++ "):]),
			})
			pending = nil
		}
	}
	return pairs, scanner.Err()
}

// stripDiffPrefix removes the leading `a/` or `b/` of a diff path.
func stripDiffPrefix(path string) string {
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

// namespaceViolation returns the first path of the pairs whose leading
// directory component is not the author's, or "" when all paths are
// inside the author's namespace. /dev/null is always permitted.
func namespaceViolation(pairs []ChangePair, author string) string {
	for _, pair := range pairs {
		for _, path := range []string{pair.From, pair.To} {
			if path == devNull {
				continue
			}
			var stripped = stripDiffPrefix(path)
			var first, _, _ = strings.Cut(stripped, "/")
			if first != author {
				return stripped
			}
		}
	}
	return ""
}

// addsSinglePatchFile reports whether the patch does exactly one thing:
// create one new file whose name ends in .patch. Such patches are
// forwarded patch files and are exempt from strict whitespace checking,
// since the inner patch legitimately carries whatever whitespace its
// own hunks need.
func addsSinglePatchFile(pairs []ChangePair) bool {
	if len(pairs) != 1 {
		return false
	}
	var pair = pairs[0]
	return pair.From == devNull &&
		pair.To != devNull &&
		strings.HasSuffix(stripDiffPrefix(pair.To), ".patch")
}

// violatesRubric counts the patch's normalized pairs against the
// expected shape and reports whether any expected pair was never seen.
func violatesRubric(pairs []ChangePair, shape PatchShape, author string) bool {
	var counters = shape.counters()
	for _, pair := range pairs {
		var normalized = pair.normalize(author)
		if _, expected := counters[normalized]; expected {
			counters[normalized]++
		}
	}
	for _, n := range counters {
		if n == 0 {
			return true
		}
	}
	return false
}

// joinIndices renders 1-based patch indices for feedback strings.
func joinIndices(indices []int) string {
	var parts = make([]string, len(indices))
	for i, n := range indices {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
