// Package gitvc wraps the git binary for the grading workflow: applying
// mailed patches into scratch repositories, promoting per-user tags, and
// attaching feedback notes. Operations shell out to git the way the rest
// of the pipeline shells out to the mail tools; there is no daemon state.
package gitvc

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Identity is the committer/author identity a repo operates under.
type Identity struct {
	Name  string
	Email string
}

// The two identities the pipeline commits under: the ingest-side checker
// and the deadline-side grader.
var (
	Mailman = Identity{Name: "mailman", Email: "mailman@mailman"}
	Denis   = Identity{Name: "denis", Email: "denis@denis"}
)

// Error carries the git invocation and its stderr for logging.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *Error) Unwrap() error { return e.Err }

// Repo is a working tree bound to an identity.
type Repo struct {
	Dir    string
	ident  Identity
	logger *log.Entry
}

// Init creates an empty repository at dir.
func Init(dir string, ident Identity) (*Repo, error) {
	var r = newRepo(dir, ident)
	if _, err := r.run("init", "--quiet", "."); err != nil {
		return nil, err
	}
	return r, nil
}

// CloneOpts restricts what Clone fetches.
type CloneOpts struct {
	Branch       string
	SingleBranch bool
	NoTags       bool
}

// Clone clones url into dir.
func Clone(url, dir string, ident Identity, opts CloneOpts) (*Repo, error) {
	var args = []string{"clone", "--quiet"}
	if opts.Branch != "" {
		args = append(args, "--branch="+opts.Branch)
	}
	if opts.SingleBranch {
		args = append(args, "--single-branch")
	}
	if opts.NoTags {
		args = append(args, "--no-tags")
	}
	args = append(args, url, dir)

	var r = newRepo(dir, ident)
	// Clone runs outside the (not yet existing) work tree.
	if err := r.runBare(args...); err != nil {
		return nil, err
	}
	return r, nil
}

func newRepo(dir string, ident Identity) *Repo {
	return &Repo{
		Dir:    dir,
		ident:  ident,
		logger: log.WithFields(log.Fields{"repo": dir, "as": ident.Name}),
	}
}

func (r *Repo) configArgs() []string {
	return []string{
		"-c", "user.name=" + r.ident.Name,
		"-c", "user.email=" + r.ident.Email,
		"-c", "advice.mergeConflict=false",
	}
}

// run executes git inside the repo and returns trimmed stdout.
func (r *Repo) run(args ...string) (string, error) {
	var full = append(r.configArgs(), args...)
	var cmd = exec.Command("git", full...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.WithField("args", args).Debug("running git")
	if err := cmd.Run(); err != nil {
		return "", &Error{Args: args, Stderr: stderr.String(), Err: err}
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// runBare executes git without entering the repo directory.
func (r *Repo) runBare(args ...string) error {
	var full = append(r.configArgs(), args...)
	var cmd = exec.Command("git", full...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &Error{Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// ApplyOpts selects git-am behavior for one application attempt.
type ApplyOpts struct {
	// KeepEmpty applies diffless mails as empty commits rather than
	// failing; cover letters require it.
	KeepEmpty bool
	// WhitespaceErrorAll makes any whitespace damage a hard failure.
	WhitespaceErrorAll bool
}

// ApplyMailbox applies one mailed patch file. Subject prefixes are kept
// verbatim so the subject-tag check can see them later.
func (r *Repo) ApplyMailbox(path string, opts ApplyOpts) error {
	var args = []string{"am", "--keep"}
	if opts.KeepEmpty {
		args = append(args, "--empty=keep")
	}
	if opts.WhitespaceErrorAll {
		args = append(args, "--whitespace=error-all")
	}
	args = append(args, path)
	var _, err = r.run(args...)
	return err
}

// AbortApply resets a failed git-am so another attempt can run.
func (r *Repo) AbortApply() error {
	var _, err = r.run("am", "--abort")
	return err
}

// CommitEmpty records an empty commit with the message.
func (r *Repo) CommitEmpty(message string) error {
	var _, err = r.run("commit", "--allow-empty", "-m", message)
	return err
}

// CreateTag creates a tag at ref (HEAD when empty). A non-empty message
// makes the tag annotated.
func (r *Repo) CreateTag(name, ref, message string) error {
	var args = []string{"tag"}
	if message != "" {
		args = append(args, "-m", message)
	}
	args = append(args, name)
	if ref != "" {
		args = append(args, ref)
	}
	var _, err = r.run(args...)
	return err
}

// TagExists reports whether the tag name exists in the repo.
func (r *Repo) TagExists(name string) (bool, error) {
	var out, err = r.run("tag", "--list", name)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Tags lists all tag names.
func (r *Repo) Tags() ([]string, error) {
	var out, err = r.run("tag", "--list")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// PushTags pushes all tags to the remote URL. Failures are returned
// without retry; the orchestrator decides what happens next.
func (r *Repo) PushTags(remote string) error {
	var _, err = r.run("push", "--quiet", remote, "--tags")
	return err
}

// FetchNotes fetches all notes refs from the remote.
func (r *Repo) FetchNotes(remote string) error {
	var _, err = r.run("fetch", "--quiet", remote, "refs/notes/*:refs/notes/*")
	return err
}

// PushNotes pushes all notes refs to the remote as a group.
func (r *Repo) PushNotes(remote string) error {
	var _, err = r.run("push", "--quiet", remote, "refs/notes/*:refs/notes/*")
	return err
}

// AddNote attaches body to target under refs/notes/<ref>.
func (r *Repo) AddNote(ref, target, body string) error {
	var _, err = r.run("notes", "--ref="+ref, "add", "-f", target, "-m", body)
	return err
}

// RevParse resolves a revision to its commit hash.
func (r *Repo) RevParse(rev string) (string, error) {
	return r.run("rev-parse", rev+"^{commit}")
}

// RevList returns the commits reachable from rev, oldest first.
func (r *Repo) RevList(rev string) ([]string, error) {
	var out, err = r.run("rev-list", "--reverse", rev)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitMessage returns the full commit message of a commit.
func (r *Repo) CommitMessage(sha string) (string, error) {
	return r.run("log", "-1", "--format=%B", sha)
}

// CommitSubject returns the subject line of a commit.
func (r *Repo) CommitSubject(sha string) (string, error) {
	return r.run("log", "-1", "--format=%s", sha)
}

// DiffStat returns `git diff --stat --summary` output for a range.
func (r *Repo) DiffStat(rangeSpec string) (string, error) {
	return r.run("diff", "--stat", "--summary", rangeSpec)
}
