package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/patchbay/patchbay/go/store"
)

type cmdAssignmentsCreate struct {
	Store   storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Name    string        `long:"assignment" short:"a" required:"true" description:"Assignment name"`
	Initial int64         `long:"initial" required:"true" description:"Initial deadline (unix seconds)"`
	Peer    int64         `long:"peer" required:"true" description:"Peer-review deadline (unix seconds)"`
	Final   int64         `long:"final" required:"true" description:"Final deadline (unix seconds)"`
	Log     mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdAssignmentsCreate) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	err = s.CreateAssignment(store.Assignment{
		Name:          cmd.Name,
		InitialDue:    cmd.Initial,
		PeerReviewDue: cmd.Peer,
		FinalDue:      cmd.Final,
	})
	if err != nil {
		return err
	}
	log.WithField("assignment", cmd.Name).Info("assignment created")
	return nil
}

type cmdAssignmentsAlter struct {
	Store   storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Name    string        `long:"assignment" short:"a" required:"true" description:"Assignment name"`
	Initial *int64        `long:"initial" description:"New initial deadline (unix seconds)"`
	Peer    *int64        `long:"peer" description:"New peer-review deadline (unix seconds)"`
	Final   *int64        `long:"final" description:"New final deadline (unix seconds)"`
	Log     mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdAssignmentsAlter) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	found, err := s.AlterAssignment(cmd.Name, cmd.Initial, cmd.Peer, cmd.Final)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no such assignment %q", cmd.Name)
	}
	log.WithField("assignment", cmd.Name).Info("assignment altered")
	return nil
}

type cmdAssignmentsRemove struct {
	Store storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Name  string        `long:"assignment" short:"a" required:"true" description:"Assignment name"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdAssignmentsRemove) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	found, err := s.RemoveAssignment(cmd.Name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no such assignment %q", cmd.Name)
	}
	log.WithField("assignment", cmd.Name).Info("assignment removed")
	return nil
}

type cmdAssignmentsDump struct {
	Store storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	ISO   bool          `long:"iso" short:"i" description:"Render deadlines as RFC 3339 timestamps"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdAssignmentsDump) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	assignments, err := s.ListAssignments()
	if err != nil {
		return err
	}

	var heading = color.New(color.FgCyan, color.Bold)
	for _, asn := range assignments {
		heading.Printf("%s (id %d)\n", asn.Name, asn.ID)
		fmt.Printf("  initial:      %s\n", cmd.renderDeadline(asn.InitialDue))
		fmt.Printf("  peer review:  %s\n", cmd.renderDeadline(asn.PeerReviewDue))
		fmt.Printf("  final:        %s\n", cmd.renderDeadline(asn.FinalDue))
	}
	return nil
}

func (cmd cmdAssignmentsDump) renderDeadline(ts int64) string {
	if ts == store.FarFuture {
		return color.YellowString("disabled")
	}
	var rendered = fmt.Sprintf("%d", ts)
	if cmd.ISO {
		rendered = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	if ts <= time.Now().Unix() {
		return color.RedString("%s (elapsed)", rendered)
	}
	return color.GreenString(rendered)
}

type cmdAssignmentsDummy struct {
	Store storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Name  string        `long:"assignment" short:"a" required:"true" description:"Assignment name"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdAssignmentsDummy) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	err = s.CreateAssignment(store.Assignment{
		Name:          cmd.Name,
		InitialDue:    store.FarFuture,
		PeerReviewDue: store.FarFuture,
		FinalDue:      store.FarFuture,
	})
	if err != nil {
		return err
	}
	log.WithField("assignment", cmd.Name).Info("dummy assignment created")
	return nil
}
