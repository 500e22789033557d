package main

import (
	"github.com/jessevdk/go-flags"
	mbp "go.gazette.dev/core/mainboilerplate"
)

const iniFilename = "patchbay.ini"

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	assignments, err := parser.Command.AddCommand("assignments", "Manage assignments", "", &struct{}{})
	mbp.Must(err, "failed to add command")

	addCmd(assignments, "create", "Create an assignment", `
Create an assignment with its three deadlines, given as unix seconds.
Deadlines must be ordered: initial <= peer <= final.
`, &cmdAssignmentsCreate{})

	addCmd(assignments, "alter", "Alter an assignment's deadlines", `
Update any subset of an existing assignment's deadlines.
`, &cmdAssignmentsAlter{})

	addCmd(assignments, "remove", "Remove an assignment", `
Remove an assignment. Submissions and gradeables already recorded are kept.
`, &cmdAssignmentsRemove{})

	addCmd(assignments, "dump", "Print all assignments", `
Print every assignment and its deadlines. By default deadlines print as
unix seconds; pass --iso for RFC 3339.
`, &cmdAssignmentsDump{})

	addCmd(assignments, "dummy", "Create a disabled assignment", `
Create an assignment whose deadlines are all the FAR_FUTURE sentinel.
Its stages never fire on their own and are driven via trigger.
`, &cmdAssignmentsDummy{})

	addCmd(parser, "reload", "Rebuild the scheduler's waiters", `
Signal the running scheduler (SIGUSR1) to rebuild its deadline waiters
from the store. Use after assignments create or alter.
`, &cmdReload{})

	addCmd(parser, "trigger", "Force a deadline stage to run now", `
Move the named stage's deadline to now and make the scheduler run it
immediately. The stage must not have elapsed yet.
`, &cmdTrigger{})

	addCmd(parser, "ingest", "Ingest one mail session log", `
Classify and record one completed mail session. Intended as the mail
server's session exit hook; re-running over the same log is a no-op.
`, &cmdIngest{})

	deadlines, err := parser.Command.AddCommand("deadline", "Run a deadline stage once", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(deadlines, "initial", "Run the initial stage", "", &cmdDeadlineInitial{})
	addCmd(deadlines, "peer", "Run the peer-review stage", "", &cmdDeadlinePeer{})
	addCmd(deadlines, "final", "Run the final stage", "", &cmdDeadlineFinal{})

	serve, err := parser.Command.AddCommand("serve", "Serve a component of Patchbay", "", &struct{}{})
	mbp.Must(err, "failed to add command")

	addCmd(serve, "scheduler", "Serve the deadline scheduler", `
Run the deadline scheduler until signaled to exit (via SIGTERM). SIGUSR1
rebuilds the waiter set; forced triggers arrive on the control socket.
`, &cmdServeScheduler{})

	addCmd(serve, "auth", "Serve the auth endpoints", `
Serve the mail-auth hook, login, registration, and activity endpoints.
`, &cmdServeAuth{})

	inspect, err := parser.Command.AddCommand("inspect", "Inspect recorded state", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(inspect, "submissions", "List submissions", "", &cmdInspectSubmissions{})
	addCmd(inspect, "gradeables", "List gradeables", "", &cmdInspectGradeables{})
	addCmd(inspect, "missing", "List users without a gradeable", "", &cmdInspectMissing{})
	addCmd(inspect, "oopsies", "List oopsies", "", &cmdInspectOopsies{})

	users, err := parser.Command.AddCommand("users", "Manage the roster", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(users, "create", "Add a roster user", `
Add an unregistered roster user. The student later exchanges the student
ID for credentials via the register endpoint.
`, &cmdUsersCreate{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, a, b, c string, iface interface{}) *flags.Command {
	var cmd, err = to.AddCommand(a, b, c, iface)
	mbp.Must(err, "failed to add flags parser command")
	return cmd
}
