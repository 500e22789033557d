package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/patchbay/patchbay/go/scheduler"
	"github.com/patchbay/patchbay/go/store"
)

type cmdTrigger struct {
	Store      storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Assignment string        `long:"assignment" short:"a" required:"true" description:"Assignment name"`
	Component  string        `long:"component" short:"c" required:"true" choice:"initial" choice:"peer" choice:"final" description:"Stage to trigger"`
	Socket     string        `long:"socket" env:"SOCKET" default:"/run/patchbay/scheduler.sock" description:"Scheduler control socket"`
	Log        mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdTrigger) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var stage, err = store.ParseStage(cmd.Component)
	if err != nil {
		return err
	}

	s, err := cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	asn, err := s.LookupAssignment(cmd.Assignment)
	if err != nil {
		return err
	}
	if asn == nil {
		return fmt.Errorf("no such assignment %q", cmd.Assignment)
	}

	var payload = scheduler.EncodeTrigger(asn.ID, stage)
	if err = scheduler.SendTrigger(cmd.Socket, payload); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"assignment": cmd.Assignment,
		"stage":      stage,
		"payload":    payload,
	}).Info("trigger sent")
	return nil
}

type cmdReload struct {
	Pid int           `long:"pid" default:"1" description:"Scheduler process ID"`
	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdReload) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	if err := scheduler.SendReload(cmd.Pid); err != nil {
		return err
	}
	log.WithField("pid", cmd.Pid).Info("reload signaled")
	return nil
}
