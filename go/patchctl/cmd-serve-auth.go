package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"
	"go.gazette.dev/core/task"

	"github.com/patchbay/patchbay/go/auth"
)

type cmdServeAuth struct {
	Store storeConfig `group:"Store" namespace:"store" env-namespace:"STORE"`

	Listen     string        `long:"listen" env:"LISTEN" default:":8080" description:"Address to serve on"`
	SessionTTL time.Duration `long:"session-ttl" env:"SESSION_TTL" default:"180m" description:"Web session lifetime"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func (cmd cmdServeAuth) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var s, err = cmd.Store.open()
	mbp.Must(err, "opening store")
	defer s.Close()

	var server = &http.Server{
		Addr:    cmd.Listen,
		Handler: (&auth.Server{Gateway: auth.NewGateway(s, cmd.SessionTTL)}).Routes(),
	}

	var tasks = task.NewGroup(context.Background())
	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	tasks.Queue("watch signalCh", func() error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			tasks.Cancel()
			return server.Shutdown(context.Background())
		case <-tasks.Context().Done():
			return nil
		}
	})
	tasks.Queue("auth server", func() error {
		log.WithField("listen", cmd.Listen).Info("serving auth endpoints")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	tasks.GoRun()

	mbp.Must(tasks.Wait(), "auth server task failed")
	log.Info("goodbye")
	return nil
}
