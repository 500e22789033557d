// Package maillog reads the per-session logs written by the mail server.
// Each completed SMTP session produces one file whose name doubles as the
// submission ID: a header line `<unix-seconds> <username>` followed by one
// line per delivered email, `<recipient> <message-id>`.
package maillog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Email is one delivered email of a session: the inbox it was addressed
// to, and the message ID under which the mail server stored its contents.
type Email struct {
	Rcpt  string
	MsgID string
}

// Session is a fully parsed session log.
type Session struct {
	// ID is the log's filename, and becomes the submission ID.
	ID        string
	Timestamp int64
	User      string
	Emails    []Email
}

// ParseFile reads and parses the session log `file` under `dir`.
// A session with no emails is valid (the user logged in and sent nothing).
func ParseFile(dir, file string) (Session, error) {
	var f, err = os.Open(filepath.Join(dir, file))
	if err != nil {
		return Session{}, err
	}
	defer f.Close()

	var scanner = bufio.NewScanner(f)
	if !scanner.Scan() {
		return Session{}, fmt.Errorf("session log %s: missing header", file)
	}
	session, err := parseHeader(scanner.Text())
	if err != nil {
		return Session{}, fmt.Errorf("session log %s: %w", file, err)
	}
	session.ID = file

	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		email, err := parseEmailLine(line)
		if err != nil {
			return Session{}, fmt.Errorf("session log %s: %w", file, err)
		}
		session.Emails = append(session.Emails, email)
	}
	if err = scanner.Err(); err != nil {
		return Session{}, fmt.Errorf("session log %s: %w", file, err)
	}
	return session, nil
}

func parseHeader(line string) (Session, error) {
	var fields = strings.Fields(line)
	if len(fields) != 2 {
		return Session{}, fmt.Errorf("malformed header %q", line)
	}
	var ts, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("malformed timestamp %q", fields[0])
	}
	return Session{Timestamp: ts, User: fields[1]}, nil
}

func parseEmailLine(line string) (Email, error) {
	var fields = strings.Fields(line)
	if len(fields) != 2 {
		return Email{}, fmt.Errorf("malformed email line %q", line)
	}
	return Email{Rcpt: fields[0], MsgID: fields[1]}, nil
}
