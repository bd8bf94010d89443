package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/collegium/apps/shared"
	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/services/logger"
	"github.com/trezcool/collegium/services/supabase"
	"github.com/trezcool/collegium/storage/localquery"
)

func main() {
	std := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(false)

	// set up storage
	kv, err := shared.OpenSubstrate(context.Background(), conf, logger, false /* migrate */)
	if err != nil {
		std.Fatal(err)
	}

	store := localstore.New(kv, localstore.WithKeyPrefix(conf.Storage.KeyPrefix), localstore.WithLogger(logger))
	cli := commandLine{
		store: store,
		local: localquery.New(store),
		db:    kv.DB,
		out:   os.Stdout,
	}
	if conf.Remote.URL != "" && conf.Remote.AnonKey != "" {
		cli.remote = supabase.NewClientFromConfig(conf.Remote, supabase.WithLogger(logger), supabase.WithSessionStore(kv))
	}

	// start CLI
	err = cli.run(os.Args)
	if cErr := kv.Close(); cErr != nil {
		std.Printf("closing storage: %v\n", cErr)
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
