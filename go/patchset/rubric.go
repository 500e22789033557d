package patchset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TemplateUser is the placeholder rubrics use for the submitting user's
// directory. Observed paths are normalized onto it before counting.
const TemplateUser = "USERNAME"

// ChangePair is one (from, to) file header pair of a patch, as it
// appears in the `--- ` / `+++ ` diff lines.
type ChangePair struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// PatchShape is the multiset of change pairs one patch is expected to
// contain.
type PatchShape []ChangePair

// Rubric is the expected shape of a whole patchset, one entry per patch
// in order. It is a plain value with no cyclic structure.
type Rubric []PatchShape

// LoadRubric reads the rubric for an assignment from dir, returning a
// nil Rubric when the assignment has none.
func LoadRubric(dir, assignment string) (Rubric, error) {
	var data, err = os.ReadFile(filepath.Join(dir, assignment+".yaml"))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading rubric: %w", err)
	}
	var rubric Rubric
	if err = yaml.Unmarshal(data, &rubric); err != nil {
		return nil, fmt.Errorf("parsing rubric for %s: %w", assignment, err)
	}
	return rubric, nil
}

// counters returns the shape's zeroed counting map. Duplicate pairs in a
// shape collapse into one counter.
func (p PatchShape) counters() map[ChangePair]int {
	var m = make(map[ChangePair]int, len(p))
	for _, pair := range p {
		m[pair] = 0
	}
	return m
}

// normalizePath rewrites the author's leading path component onto the
// rubric's template token, leaving /dev/null and foreign paths alone.
func normalizePath(path, author string) string {
	if path == devNull {
		return path
	}
	var prefix string
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		prefix, path = path[:2], path[2:]
	}
	var first, rest, hasRest = strings.Cut(path, "/")
	if first != author {
		return prefix + path
	}
	if !hasRest {
		return prefix + TemplateUser
	}
	return prefix + TemplateUser + "/" + rest
}

// normalize maps an observed pair onto rubric template space.
func (c ChangePair) normalize(author string) ChangePair {
	return ChangePair{
		From: normalizePath(c.From, author),
		To:   normalizePath(c.To, author),
	}
}
