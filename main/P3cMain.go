package main

import (
	"flag"
	"fmt"
	"os"

	"p3c/common/config"
	"p3c/common/logger"
	"p3c/common/utils/sys"
	"p3c/project"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "machine yaml (defaults built in)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = loaded
	}

	level := logger.InfoLevel
	if cfg.Log.Verbose {
		level = logger.DebugLevel
	}
	logger.InitLogger(level, cfg.Log.File, cfg.Log.Color, 10, 3, 14)
	defer logger.Sync()

	sys.SetupRealtime()

	var backend project.HardwareBackend
	if cfg.MockHardware {
		backend = project.NewSimBackend()
	} else {
		b, err := project.NewRpioBackend(cfg.Axes)
		if err != nil {
			logger.Errorf("gpio backend: %v", err)
			return 1
		}
		backend = b
	}
	defer backend.Close()

	// The host channel: a gcode file argument, the configured serial
	// device, or stdin.
	var com *project.Com
	var persistent bool
	switch {
	case flag.NArg() > 0:
		c, err := project.NewFileCom(flag.Arg(0))
		if err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		com = c
	case cfg.Serial.Device != "":
		c, err := project.NewSerialCom(cfg.Serial.Device, cfg.Serial.Baud)
		if err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		com = c
		persistent = true
	default:
		com = project.NewStdioCom()
		persistent = true
	}

	state, err := project.NewState(cfg, backend, com, persistent)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	logger.Infof("p3c %s up, geometry %s", project.FirmwareVersion, cfg.Geometry)
	return state.Run()
}
