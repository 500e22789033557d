package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.gazette.dev/core/task"

	"github.com/patchbay/patchbay/go/store"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeRunner) Run(stage store.Stage, assignment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, assignment+"/"+stage.String())
	return nil
}

func (f *fakeRunner) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

func TestTriggerPayloadRoundTrip(t *testing.T) {
	for id := int64(1); id <= 50; id++ {
		for _, stage := range []store.Stage{store.StageInitial, store.StagePeerReview, store.StageFinal} {
			var gotID, gotStage, err = DecodeTrigger(EncodeTrigger(id, stage))
			require.NoError(t, err)
			require.Equal(t, id, gotID)
			require.Equal(t, stage, gotStage)
		}
	}
}

func TestDecodeTriggerRejectsBogusPayloads(t *testing.T) {
	for _, payload := range []int64{-3, -1, 0, 1, 2} {
		var _, _, err = DecodeTrigger(payload)
		require.Error(t, err, "payload %d", payload)
	}
}

func newTestScheduler(t *testing.T, runner StageRunner) *Scheduler {
	t.Helper()
	var s, err = store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, runner, filepath.Join(t.TempDir(), "control.sock"))
}

func assignmentID(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()
	var asn, err = s.LookupAssignment(name)
	require.NoError(t, err)
	require.NotNil(t, asn)
	return asn.ID
}

func TestReloadSpawnsOnlyFutureWaiters(t *testing.T) {
	var runner = &fakeRunner{}
	var sch = newTestScheduler(t, runner)

	var now = time.Now().Unix()
	require.NoError(t, sch.Store.CreateAssignment(store.Assignment{
		Name: "past", InitialDue: now - 300, PeerReviewDue: now - 200, FinalDue: now - 100,
	}))
	require.NoError(t, sch.Store.CreateAssignment(store.Assignment{
		Name: "future", InitialDue: now + 3600, PeerReviewDue: now + 7200, FinalDue: now + 10800,
	}))
	require.NoError(t, sch.Store.CreateAssignment(store.Assignment{
		Name: "dummy", InitialDue: store.FarFuture, PeerReviewDue: store.FarFuture, FinalDue: store.FarFuture,
	}))

	require.NoError(t, sch.reload(context.Background()))
	defer sch.cancelAll()

	require.Len(t, sch.waiters, 3)
	var futureID = assignmentID(t, sch.Store, "future")
	for stage := store.StageInitial; stage <= store.StageFinal; stage++ {
		require.Contains(t, sch.waiters, waiterKey{futureID, stage})
	}
}

func TestHandleTriggerRunsStageOnce(t *testing.T) {
	var runner = &fakeRunner{}
	var sch = newTestScheduler(t, runner)

	require.NoError(t, sch.Store.CreateAssignment(store.Assignment{
		Name: "programming1", InitialDue: store.FarFuture,
		PeerReviewDue: store.FarFuture, FinalDue: store.FarFuture,
	}))
	var id = assignmentID(t, sch.Store, "programming1")

	sch.handleTrigger(context.Background(), EncodeTrigger(id, store.StagePeerReview))
	require.Equal(t, []string{"programming1/peer_review"}, runner.snapshot())

	var asn, err = sch.Store.AssignmentByID(id)
	require.NoError(t, err)
	require.LessOrEqual(t, asn.PeerReviewDue, time.Now().Unix())
	require.Equal(t, store.FarFuture, asn.InitialDue)
	require.Equal(t, store.FarFuture, asn.FinalDue)

	// The deadline has elapsed now; an identical trigger is rejected.
	sch.handleTrigger(context.Background(), EncodeTrigger(id, store.StagePeerReview))
	require.Equal(t, []string{"programming1/peer_review"}, runner.snapshot())
}

func TestHandleTriggerRejectsUnknownAssignment(t *testing.T) {
	var runner = &fakeRunner{}
	var sch = newTestScheduler(t, runner)

	sch.handleTrigger(context.Background(), EncodeTrigger(42, store.StageInitial))
	require.Empty(t, runner.snapshot())
}

func TestHandleFireDropsStaleWaiters(t *testing.T) {
	var runner = &fakeRunner{}
	var sch = newTestScheduler(t, runner)

	// No registered waiter for this key: a late fire event is a no-op.
	sch.handleFire(waiterKey{1, store.StageInitial})
	require.Empty(t, runner.snapshot())
}

func TestBackToBackSignalsAreNotDropped(t *testing.T) {
	var runner = &fakeRunner{}
	var sch = newTestScheduler(t, runner)

	// A termination queued behind a pending reload must still land: both
	// sends buffer without blocking, the loop rebuilds its waiters, then
	// exits.
	sch.signalCh <- syscall.SIGUSR1
	sch.signalCh <- syscall.SIGTERM
	require.NoError(t, sch.run(context.Background()))
	require.Empty(t, sch.waiters)
}

func TestTriggerOverControlSocket(t *testing.T) {
	var runner = &fakeRunner{}
	var sch = newTestScheduler(t, runner)

	require.NoError(t, sch.Store.CreateAssignment(store.Assignment{
		Name: "programming1", InitialDue: store.FarFuture,
		PeerReviewDue: store.FarFuture, FinalDue: store.FarFuture,
	}))
	var id = assignmentID(t, sch.Store, "programming1")

	var tasks = task.NewGroup(context.Background())
	require.NoError(t, sch.QueueTasks(tasks))
	tasks.GoRun()

	require.NoError(t, SendTrigger(sch.SocketPath, EncodeTrigger(id, store.StageFinal)))

	require.Eventually(t, func() bool {
		var runs = runner.snapshot()
		return len(runs) == 1 && runs[0] == "programming1/final"
	}, 5*time.Second, 10*time.Millisecond)

	tasks.Cancel()
	require.NoError(t, tasks.Wait())
}
