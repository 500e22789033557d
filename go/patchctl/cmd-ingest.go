package main

import (
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdIngest struct {
	Store storeConfig `group:"Store" namespace:"store" env-namespace:"STORE"`
	Paths pathsConfig `group:"Paths" namespace:"paths" env-namespace:"PATHS"`
	Git   gitConfig   `group:"Grading repository" namespace:"git" env-namespace:"GIT"`

	Args struct {
		LogDir  string `positional-arg-name:"logdir" description:"Session log directory"`
		LogFile string `positional-arg-name:"logfile" description:"Session log filename"`
	} `positional-args:"true" required:"true"`

	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdIngest) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	return newIngestor(s, cmd.Paths, cmd.Git).Run(cmd.Args.LogDir, cmd.Args.LogFile)
}
