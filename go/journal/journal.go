// Package journal maintains the append-only email journal shared by every
// mailbox, together with the per-user visibility gates the deadline
// runners flip around the initial submission deadline.
//
// The journal itself is a flat file of concatenated email records. A
// side-file keyed by username records, for each denied user, the journal
// offset at which their view was frozen: records appended between a deny
// and the next allow are never visible to that user, while records
// delivered before the deny remain visible.
package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Journal is a handle to the journal file and its visibility side-file.
type Journal struct {
	path string
}

// Open returns a Journal rooted at path, creating an empty journal file
// if none exists.
func Open(path string) (*Journal, error) {
	var f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	_ = f.Close()
	return &Journal{path: path}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

func (j *Journal) limitsPath() string { return j.path + ".limits" }

// Append atomically appends a record to the journal. The journal is
// exclusively locked for the duration and the data is fsynced before the
// append is considered delivered.
func (j *Journal) Append(data []byte) error {
	var f, err = os.OpenFile(j.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	if err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("locking journal: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	if _, err = f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seeking journal end: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("appending to journal: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("syncing journal: %w", err)
	}
	return nil
}

// End returns the current journal size in bytes.
func (j *Journal) End() (int64, error) {
	var fi, err = os.Stat(j.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Deny freezes the user's view of the journal at its current end. A
// second deny before the next allow is a no-op: the earliest freeze
// point wins.
func (j *Journal) Deny(user string) error {
	var end, err = j.End()
	if err != nil {
		return err
	}
	limits, err := j.loadLimits()
	if err != nil {
		return err
	}
	if _, denied := limits[user]; denied {
		return nil
	}
	limits[user] = end
	return j.storeLimits(limits)
}

// Allow lifts the user's visibility freeze, making the full journal
// readable again.
func (j *Journal) Allow(user string) error {
	var limits, err = j.loadLimits()
	if err != nil {
		return err
	}
	if _, denied := limits[user]; !denied {
		return nil
	}
	delete(limits, user)
	return j.storeLimits(limits)
}

// VisibleTo returns the length of the journal prefix the user may read.
func (j *Journal) VisibleTo(user string) (int64, error) {
	var limits, err = j.loadLimits()
	if err != nil {
		return 0, err
	}
	if limit, denied := limits[user]; denied {
		return limit, nil
	}
	return j.End()
}

// ReadVisible returns the journal contents visible to the user.
func (j *Journal) ReadVisible(user string) ([]byte, error) {
	var limit, err = j.VisibleTo(user)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(j.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

func (j *Journal) loadLimits() (map[string]int64, error) {
	var data, err = os.ReadFile(j.limitsPath())
	if os.IsNotExist(err) {
		return map[string]int64{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading visibility limits: %w", err)
	}
	var limits map[string]int64
	if err = json.Unmarshal(data, &limits); err != nil {
		return nil, fmt.Errorf("decoding visibility limits: %w", err)
	}
	return limits, nil
}

// storeLimits writes the side-file through a temp file and rename so a
// crash never leaves a torn limits map.
func (j *Journal) storeLimits(limits map[string]int64) error {
	var data, err = json.Marshal(limits)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(j.limitsPath()), ".limits-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.limitsPath())
}
