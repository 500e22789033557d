// Package scheduler is the long-lived orchestrator: it watches every
// assignment deadline and executes the matching deadline stage when one
// elapses. It is designed to run as PID 1 of its container: SIGUSR1
// rebuilds the waiter set from the store, SIGTERM shuts down, and a
// forced trigger arrives over a unix control socket.
package scheduler

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"go.gazette.dev/core/task"

	"github.com/patchbay/patchbay/go/store"
)

// StageRunner executes one deadline stage. *deadline.Runner satisfies it.
type StageRunner interface {
	Run(stage store.Stage, assignment string) error
}

type waiterKey struct {
	AssignmentID int64
	Stage        store.Stage
}

type waiter struct {
	cancel context.CancelFunc
	due    int64
}

// Scheduler owns the waiter set. All waiter mutation and all runner
// execution happen on the single run loop, so at most one stage runs at
// a time and a trigger can never race a firing deadline.
type Scheduler struct {
	Store      *store.Store
	Runner     StageRunner
	SocketPath string

	signalCh  chan os.Signal
	triggerCh chan int64
	fireCh    chan waiterKey
	waiters   map[waiterKey]*waiter
}

func New(s *store.Store, runner StageRunner, socketPath string) *Scheduler {
	return &Scheduler{
		Store:      s,
		Runner:     runner,
		SocketPath: socketPath,
		signalCh:   make(chan os.Signal, 2),
		triggerCh:  make(chan int64, 8),
		fireCh:     make(chan waiterKey, 8),
		waiters:    make(map[waiterKey]*waiter),
	}
}

// QueueTasks installs signal handlers, binds the control socket, and
// queues the accept and run loops onto the task group.
func (s *Scheduler) QueueTasks(tasks *task.Group) error {
	signal.Notify(s.signalCh, syscall.SIGUSR1, syscall.SIGTERM)

	_ = os.Remove(s.SocketPath)
	var listener, err = net.Listen("unix", s.SocketPath)
	if err != nil {
		return err
	}

	tasks.Queue("trigger-socket", func() error {
		return s.serveSocket(tasks.Context(), listener)
	})
	tasks.Queue("scheduler-loop", func() error {
		defer tasks.Cancel()
		return s.run(tasks.Context())
	})
	return nil
}

func (s *Scheduler) run(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			s.cancelAll()
			return nil

		case sig := <-s.signalCh:
			if sig == syscall.SIGTERM {
				log.Info("caught SIGTERM; shutting down")
				s.cancelAll()
				return nil
			}
			log.Info("caught SIGUSR1; rebuilding waiters")
			s.cancelAll()
			if err := s.reload(ctx); err != nil {
				return err
			}

		case payload := <-s.triggerCh:
			s.handleTrigger(ctx, payload)

		case key := <-s.fireCh:
			s.handleFire(key)
		}
	}
}

// reload spawns one waiter per finite future deadline. Elapsed deadlines
// are never re-run on reload; the operator forces those via trigger.
func (s *Scheduler) reload(ctx context.Context) error {
	var assignments, err = s.Store.ListAssignments()
	if err != nil {
		return err
	}
	var now = time.Now().Unix()

	for _, asn := range assignments {
		for stage := store.StageInitial; stage <= store.StageFinal; stage++ {
			var due = asn.Deadline(stage)
			if due == store.FarFuture {
				continue
			}
			if due <= now {
				log.WithFields(log.Fields{"assignment": asn.Name, "stage": stage}).
					Infof("skipping %s for %s", stage, asn.Name)
				continue
			}
			s.spawnWaiter(ctx, waiterKey{asn.ID, stage}, due)
		}
	}
	return nil
}

func (s *Scheduler) spawnWaiter(ctx context.Context, key waiterKey, due int64) {
	var wctx, cancel = context.WithCancel(ctx)
	s.waiters[key] = &waiter{cancel: cancel, due: due}

	go func() {
		var timer = time.NewTimer(time.Until(time.Unix(due, 0)))
		defer timer.Stop()
		select {
		case <-wctx.Done():
		case <-timer.C:
			select {
			case s.fireCh <- key:
			case <-wctx.Done():
			}
		}
	}()
}

func (s *Scheduler) cancelAll() {
	for key, w := range s.waiters {
		w.cancel()
		delete(s.waiters, key)
	}
}

// handleFire runs the stage whose waiter just elapsed. A fire for a
// waiter cancelled in the meantime is stale and dropped.
func (s *Scheduler) handleFire(key waiterKey) {
	var w, ok = s.waiters[key]
	if !ok {
		return
	}
	w.cancel()
	delete(s.waiters, key)

	var asn, err = s.Store.AssignmentByID(key.AssignmentID)
	if err != nil || asn == nil {
		log.WithFields(log.Fields{"assignmentID": key.AssignmentID, "err": err}).
			Error("fired deadline of unknown assignment")
		return
	}
	s.runStage(key.Stage, asn.Name)
}

// handleTrigger validates a forced trigger, moves the deadline to now,
// and runs the stage synchronously. Other waiters are untouched.
func (s *Scheduler) handleTrigger(ctx context.Context, payload int64) {
	var asnID, stage, err = DecodeTrigger(payload)
	if err != nil {
		log.WithFields(log.Fields{"payload": payload, "err": err}).
			Error("discarding invalid trigger")
		return
	}
	asn, err := s.Store.AssignmentByID(asnID)
	if err != nil {
		log.WithField("err", err).Error("resolving triggered assignment")
		return
	}
	if asn == nil {
		log.WithField("assignmentID", asnID).Error("trigger for unknown assignment")
		return
	}

	var now = time.Now().Unix()
	if asn.Deadline(stage) <= now {
		log.WithFields(log.Fields{"assignment": asn.Name, "stage": stage}).
			Error("trigger for elapsed deadline")
		return
	}

	if w, ok := s.waiters[waiterKey{asnID, stage}]; ok {
		w.cancel()
		delete(s.waiters, waiterKey{asnID, stage})
	}
	if err = s.Store.SetDeadline(asnID, stage, now); err != nil {
		log.WithField("err", err).Error("moving triggered deadline")
		return
	}
	log.WithFields(log.Fields{"assignment": asn.Name, "stage": stage}).
		Info("deadline triggered")
	s.runStage(stage, asn.Name)
}

func (s *Scheduler) runStage(stage store.Stage, assignment string) {
	log.WithFields(log.Fields{"assignment": assignment, "stage": stage}).
		Info("running deadline stage")
	if err := s.Runner.Run(stage, assignment); err != nil {
		log.WithFields(log.Fields{
			"assignment": assignment,
			"stage":      stage,
			"err":        err,
		}).Error("deadline stage failed; re-trigger to retry")
	}
}

// serveSocket accepts control connections, each carrying one decimal
// trigger payload.
func (s *Scheduler) serveSocket(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		var conn, err = listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.readTrigger(conn)
	}
}

func (s *Scheduler) readTrigger(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var data, err = io.ReadAll(io.LimitReader(conn, 64))
	if err != nil {
		log.WithField("err", err).Error("reading trigger payload")
		return
	}
	var text = strings.TrimSpace(string(data))
	payload, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		log.WithField("payload", text).Error("trigger without a usable payload")
		return
	}
	s.triggerCh <- payload
}
