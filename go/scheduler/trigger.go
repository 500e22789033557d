package scheduler

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/patchbay/patchbay/go/store"
)

// EncodeTrigger packs an assignment rowid and a stage into the integer
// payload carried over the control socket.
func EncodeTrigger(assignmentID int64, stage store.Stage) int64 {
	return assignmentID*3 + int64(stage)
}

// DecodeTrigger unpacks a trigger payload. Assignment rowids start at
// one, so any payload below 3 cannot name a real deadline.
func DecodeTrigger(payload int64) (int64, store.Stage, error) {
	if payload < 3 {
		return 0, 0, fmt.Errorf("payload %d does not encode an assignment", payload)
	}
	return payload / 3, store.Stage(payload % 3), nil
}

// SendTrigger delivers one payload to a running scheduler's control
// socket.
func SendTrigger(socketPath string, payload int64) error {
	var conn, err = net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("dialing scheduler: %w", err)
	}
	defer conn.Close()

	if _, err = conn.Write([]byte(strconv.FormatInt(payload, 10) + "\n")); err != nil {
		return fmt.Errorf("sending trigger: %w", err)
	}
	return nil
}

// SendReload asks the scheduler process to rebuild its waiters.
func SendReload(pid int) error {
	var proc, err = os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGUSR1)
}
