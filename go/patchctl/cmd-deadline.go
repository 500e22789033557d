package main

import (
	"os"

	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/patchbay/patchbay/go/store"
)

// deadlineStage is the shared configuration of the manual one-shot
// deadline commands.
type deadlineStage struct {
	Store storeConfig `group:"Store" namespace:"store" env-namespace:"STORE"`
	Paths pathsConfig `group:"Paths" namespace:"paths" env-namespace:"PATHS"`
	Git   gitConfig   `group:"Grading repository" namespace:"git" env-namespace:"GIT"`

	Assignment string `long:"assignment" short:"a" required:"true" description:"Assignment name"`
	Hostname   string `long:"hostname" env:"HOSTNAME" description:"Mail domain for the signed-off-by check (default: os hostname)"`

	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd deadlineStage) run(stage store.Stage) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	var hostname = cmd.Hostname
	if hostname == "" {
		hostname, err = os.Hostname()
		mbp.Must(err, "resolving hostname")
	}

	runner, err := newRunner(s, cmd.Paths, cmd.Git, hostname)
	mbp.Must(err, "opening journal")

	return runner.Run(stage, cmd.Assignment)
}

type cmdDeadlineInitial struct{ deadlineStage }

func (cmd cmdDeadlineInitial) Execute(_ []string) error {
	return cmd.run(store.StageInitial)
}

type cmdDeadlinePeer struct{ deadlineStage }

func (cmd cmdDeadlinePeer) Execute(_ []string) error {
	return cmd.run(store.StagePeerReview)
}

type cmdDeadlineFinal struct{ deadlineStage }

func (cmd cmdDeadlineFinal) Execute(_ []string) error {
	return cmd.run(store.StageFinal)
}
