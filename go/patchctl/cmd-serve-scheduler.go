package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"
	"go.gazette.dev/core/task"

	"github.com/patchbay/patchbay/go/scheduler"
)

type cmdServeScheduler struct {
	Store storeConfig `group:"Store" namespace:"store" env-namespace:"STORE"`
	Paths pathsConfig `group:"Paths" namespace:"paths" env-namespace:"PATHS"`
	Git   gitConfig   `group:"Grading repository" namespace:"git" env-namespace:"GIT"`

	Socket   string `long:"socket" env:"SOCKET" default:"/run/patchbay/scheduler.sock" description:"Control socket path"`
	Hostname string `long:"hostname" env:"HOSTNAME" description:"Mail domain for the signed-off-by check (default: os hostname)"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func (cmd cmdServeScheduler) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	log.WithFields(log.Fields{
		"config":    cmd,
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
	}).Info("patchctl configuration")

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

	var tasks = task.NewGroup(context.Background())
	mbp.Must(scheduler.New(s, runner, cmd.Socket).QueueTasks(tasks), "binding control socket")
	tasks.GoRun()

	mbp.Must(tasks.Wait(), "scheduler task failed")
	log.Info("goodbye")
	return nil
}
