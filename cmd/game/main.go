package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/app"
	"github.com/tatianab/castle-adventure/internal/config"
	"github.com/tatianab/castle-adventure/internal/logging"
	"github.com/tatianab/castle-adventure/internal/models"
	"github.com/tatianab/castle-adventure/internal/tui"
)

func main() {
	player := flag.String("player", "local", "save slot to play in")
	logFile := flag.String("log", "castle.log", "log file used while the terminal UI is running")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// The alternate screen owns the terminal, so logs go to a file.
	logCfg := cfg.Log.Logging()
	if logCfg.OutputPath == "" || logCfg.OutputPath == "stderr" || logCfg.OutputPath == "stdout" {
		logCfg.OutputPath = *logFile
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		fmt.Printf("Error starting game: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := tui.Run(a.Service, models.SessionIdentity(*player)); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
