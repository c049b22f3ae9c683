package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/content"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/services/email"
	"github.com/trezcool/kiongozi/services/logger"
	"github.com/trezcool/kiongozi/storage"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	// migrations are applied through the migrate command only
	repos, err := storage.Connect(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	cli := &commandLine{
		repos:      repos,
		usrSvc:     user.NewService(repos.Users, emailsvc.NewConsoleService(conf, logger), conf),
		contentSvc: content.NewService(repos.Curriculum, repos.Simulation, validate, translator, logger),
		out:        os.Stdout,
	}
	err = cli.run(os.Args[1:])

	if cerr := repos.Close(); cerr != nil {
		logger.Error("closing database", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
