// Package mailbox reads delivered emails out of the mail server's message
// store, where each email is a file named by its message ID.
package mailbox

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a handle to the message store directory.
type Dir struct {
	Root string
}

// Path returns the absolute path of a stored message.
func (d Dir) Path(msgID string) string {
	return filepath.Join(d.Root, msgID)
}

// Header carries the header fields of a stored message that the
// submission pipeline cares about.
type Header struct {
	// FromLocal is the local-part of the From address, or "" when the
	// header is absent or has no parsable address.
	FromLocal string
	// InReplyTo is the raw In-Reply-To value, angle brackets included,
	// or "" when absent.
	InReplyTo string
	Subject   string
}

// Header scans the headers of a stored message, stopping at the first
// blank line.
func (d Dir) Header(msgID string) (Header, error) {
	var f, err = os.Open(d.Path(msgID))
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	var hdr Header
	var scanner = bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line = scanner.Text()
		if line == "" {
			break
		}
		switch {
		case strings.HasPrefix(line, "From:"):
			hdr.FromLocal = localPart(line[len("From:"):])
		case strings.HasPrefix(line, "In-Reply-To:"):
			hdr.InReplyTo = strings.TrimSpace(line[len("In-Reply-To:"):])
		case strings.HasPrefix(line, "Subject:"):
			hdr.Subject = strings.TrimSpace(line[len("Subject:"):])
		}
	}
	return hdr, scanner.Err()
}

// localPart extracts the local-part of an address like
// `Alice <alice@host>` or `alice@host`.
func localPart(value string) string {
	value = strings.TrimSpace(value)
	if open := strings.IndexByte(value, '<'); open != -1 {
		value = value[open+1:]
	}
	var at = strings.IndexByte(value, '@')
	if at <= 0 {
		return ""
	}
	return value[:at]
}

// MaskReplyID clears the low 16 bits of a hex message ID local-part,
// yielding the submission ID the message replies to. Masking is
// idempotent: MaskReplyID(MaskReplyID(x)) == MaskReplyID(x).
func MaskReplyID(hexID string) string {
	if len(hexID) < 4 {
		return hexID
	}
	return hexID[:len(hexID)-4] + "0000"
}

// ExtractReplyID parses an In-Reply-To value of the form `<hex@host>`
// and returns the masked submission ID of the referenced patchset.
func ExtractReplyID(inReplyTo string) (string, bool) {
	var value = strings.TrimSpace(inReplyTo)
	value = strings.TrimPrefix(value, "<")
	var at = strings.IndexByte(value, '@')
	if at <= 0 {
		return "", false
	}
	return MaskReplyID(value[:at]), true
}

// DiffstatBlock returns the diffstat a cover letter places after its
// `--` sentinel line: the run of non-blank lines directly following the
// first line consisting of `--` (trailing space tolerated).
func (d Dir) DiffstatBlock(msgID string) (string, error) {
	var body, err = os.ReadFile(d.Path(msgID))
	if err != nil {
		return "", err
	}
	var block, ok = diffstatAfterSentinel(string(body))
	if !ok {
		return "", fmt.Errorf("message %s: no diffstat sentinel", msgID)
	}
	return block, nil
}

// DiffstatFromText extracts the post-sentinel diffstat block from
// already-loaded message or commit text.
func DiffstatFromText(text string) (string, bool) {
	return diffstatAfterSentinel(text)
}

func diffstatAfterSentinel(text string) (string, bool) {
	var lines = strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimRight(line, " ") != "--" {
			continue
		}
		var block []string
		for _, rest := range lines[i+1:] {
			if strings.TrimSpace(rest) == "" {
				if len(block) > 0 {
					break
				}
				continue
			}
			block = append(block, rest)
		}
		return strings.Join(block, "\n"), true
	}
	return "", false
}
