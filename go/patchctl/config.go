package main

import (
	"github.com/patchbay/patchbay/go/deadline"
	"github.com/patchbay/patchbay/go/ingest"
	"github.com/patchbay/patchbay/go/journal"
	"github.com/patchbay/patchbay/go/mailbox"
	"github.com/patchbay/patchbay/go/patchset"
	"github.com/patchbay/patchbay/go/store"
)

// storeConfig locates the sqlite databases.
type storeConfig struct {
	Dir string `long:"dir" env:"DIR" default:"/var/lib/patchbay" description:"Directory holding the sqlite databases"`
}

func (c storeConfig) open() (*store.Store, error) {
	return store.Open(c.Dir)
}

// pathsConfig locates the mail-adjacent file stores.
type pathsConfig struct {
	MailDir     string `long:"mail-dir" env:"MAIL_DIR" default:"/var/mail/messages" description:"Mail message store directory"`
	PatchsetDir string `long:"patchset-dir" env:"PATCHSET_DIR" default:"/var/lib/patchbay/patchsets" description:"Patchset spool directory"`
	Journal     string `long:"journal" env:"JOURNAL" default:"/var/lib/patchbay/journal" description:"Class journal file"`
	RubricDir   string `long:"rubric-dir" env:"RUBRIC_DIR" default:"/var/lib/patchbay/rubrics" description:"Assignment rubric directory"`
}

// gitConfig addresses the shared grading repository.
type gitConfig struct {
	PullURL string `long:"pull-url" env:"PULL_URL" default:"/var/lib/patchbay/grading.git" description:"Grading repository fetch URL"`
	PushURL string `long:"push-url" env:"PUSH_URL" default:"/var/lib/patchbay/grading.git" description:"Grading repository push URL"`
}

func newValidator(paths pathsConfig, git gitConfig) *patchset.Validator {
	return &patchset.Validator{
		Mail:      mailbox.Dir{Root: paths.MailDir},
		RubricDir: paths.RubricDir,
		PullURL:   git.PullURL,
		PushURL:   git.PushURL,
	}
}

func newIngestor(s *store.Store, paths pathsConfig, git gitConfig) *ingest.Ingestor {
	return &ingest.Ingestor{
		Store:   s,
		Mail:    mailbox.Dir{Root: paths.MailDir},
		Checker: newValidator(paths, git),
	}
}

func newRunner(s *store.Store, paths pathsConfig, git gitConfig, hostname string) (*deadline.Runner, error) {
	var j, err = journal.Open(paths.Journal)
	if err != nil {
		return nil, err
	}
	return &deadline.Runner{
		Store:       s,
		Journal:     j,
		PatchsetDir: paths.PatchsetDir,
		PullURL:     git.PullURL,
		PushURL:     git.PushURL,
		Hostname:    hostname,
	}, nil
}
