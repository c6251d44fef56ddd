package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/whole-tale/gwvolman/pkg/buildtime"
	gwvconf "github.com/whole-tale/gwvolman/pkg/configs/gwvolman"
	kpg "github.com/whole-tale/gwvolman/pkg/db/postgres"
)

func main() {

	pconfig := flag.String(
		"config", os.Getenv("GWVOLMAN_CONFIG"), "path to config file",
	)
	schemaRepo := flag.String("schema-repo", os.Getenv("GWVOLMAN_SCHEMA"), "schema repository path")
	loglevel := flag.String("loglevel", "warn", "log level. debug|info|warn|error|off")
	pversion := flag.Bool("version", false, "show version")

	flag.Parse()

	if *pversion {
		fmt.Println(buildtime.VersionString())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conf, err := gwvconf.LoadConfig(*pconfig)
	if err != nil {
		panic(err)
	}

	db, err := kpg.New(ctx, conf.Database(), kpg.WithSchemaRepository(*schemaRepo))
	if err != nil {
		panic(err)
	}
	defer db.Close()
	{
		ctx_, ccan := db.Schema().Context(ctx)
		defer ccan()
		ctx = ctx_
	}

	server := BuildServer(db.Job(), db.Ping, *loglevel)
	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", strings.ToUpper(r.Method), r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := server.Start(fmt.Sprintf(":%d", conf.Api().Port())); err != nil && err != http.ErrServerClosed {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		if err := ctx.Err(); err != nil {
			server.Logger.Infof("context has been done: %s, cause: %s", err, context.Cause(ctx))
			exit = 1
		}
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	{
		server.Logger.Info("shutting down...")
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer qcancel()

		if err := server.Shutdown(qctx); err != nil {
			server.Logger.Errorf("Shutdown with error. %+v", err)
			exit = 1
		}
		db.Close()
		os.Exit(exit)
	}
}
