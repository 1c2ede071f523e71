package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/group"
	logsvc "github.com/codeedu/lms/services/logger"
	"github.com/codeedu/lms/storage/database"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	rbLogger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rbLogger.Enable(!conf.Debug)
	logger = rbLogger

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	// set up DB
	cli := commandLine{conf: conf}
	var repos *database.Repositories
	if conf.Database.Engine == core.EnginePostgres {
		errAndDie(database.CreateIfNotExist(conf))
		db, err := database.Open(conf)
		errAndDie(err)
		errAndDie(db.Ping())
		cli.db = db.DB
		repos = database.NewPostgresRepositories(db)
	} else {
		var err error
		repos, err = database.NewRepositories(context.Background(), conf)
		errAndDie(err)
	}
	cli.usrRepo = repos.Users
	cli.grpSvc = group.NewService(repos.Groups, validate)

	// start CLI
	err := cli.run(os.Args)
	if cErr := repos.Close(); cErr != nil {
		logger.Error(fmt.Sprintf("closing database: %v", cErr), cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Info(fmt.Sprintf("\nerror: %s\n", err))
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
