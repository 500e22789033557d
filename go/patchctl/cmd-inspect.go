package main

import (
	"fmt"

	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/patchbay/patchbay/go/store"
)

type cmdInspectSubmissions struct {
	Store      storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Assignment string        `long:"assignment" short:"a" description:"Filter by recipient assignment"`
	User       string        `long:"user" short:"u" description:"Filter by user"`
	Log        mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdInspectSubmissions) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	subs, err := s.ListSubmissions(cmd.Assignment, cmd.User)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		fmt.Printf("%s\t%d\t%s\t%s\t%d\t%s\n",
			sub.SubmissionID, sub.Timestamp, sub.User, sub.Recipient,
			sub.EmailCount, sub.Status)
	}
	return nil
}

type cmdInspectGradeables struct {
	Store      storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Assignment string        `long:"assignment" short:"a" description:"Filter by assignment"`
	User       string        `long:"user" short:"u" description:"Filter by user"`
	Component  string        `long:"component" short:"c" description:"Filter by component"`
	Log        mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdInspectGradeables) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	gradeables, err := s.ListGradeables(cmd.Assignment, cmd.User, cmd.Component)
	if err != nil {
		return err
	}
	for _, g := range gradeables {
		fmt.Printf("%s\t%d\t%s\t%s\t%s\t%s\n",
			g.SubmissionID, g.Timestamp, g.User, g.Assignment,
			g.Component, g.AutoFeedback)
	}
	return nil
}

type cmdInspectMissing struct {
	Store      storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Assignment string        `long:"assignment" short:"a" required:"true" description:"Assignment name"`
	Component  string        `long:"component" short:"c" default:"initial" description:"Component to check"`
	Log        mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdInspectMissing) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	users, err := s.ListUsers()
	if err != nil {
		return err
	}
	for _, user := range users {
		g, err := s.LatestGradeable(cmd.Assignment, cmd.Component, user.Username)
		if err != nil {
			return err
		}
		if g == nil {
			fmt.Println(user.Username)
		}
	}
	return nil
}

type cmdInspectOopsies struct {
	Store      storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Assignment string        `long:"assignment" short:"a" description:"Filter by assignment"`
	Log        mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdInspectOopsies) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	oopsies, err := s.ListOopsies(cmd.Assignment)
	if err != nil {
		return err
	}
	for _, o := range oopsies {
		fmt.Printf("%s\t%s\t%d\n", o.User, o.Assignment, o.Timestamp)
	}
	return nil
}

type cmdUsersCreate struct {
	Store     storeConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Username  string        `long:"username" short:"u" required:"true" description:"Username"`
	FullName  string        `long:"fullname" short:"f" required:"true" description:"Full name"`
	StudentID string        `long:"student-id" short:"s" description:"Student ID used for registration"`
	Log       mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdUsersCreate) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	var user = store.User{Username: cmd.Username, FullName: cmd.FullName}
	if cmd.StudentID != "" {
		user.StudentID = &cmd.StudentID
	}
	return s.CreateUser(user)
}
