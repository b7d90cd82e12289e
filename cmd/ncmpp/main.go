package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	ncmpp "github.com/WindustH/ncmpp"
	"github.com/WindustH/ncmpp/ncm"
	"github.com/WindustH/ncmpp/pool"
	"github.com/WindustH/ncmpp/tag"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type App struct {
	cfg *Config
	log ncmpp.Logger

	completed atomic.Int32
	failed    atomic.Int32
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	} else if err != nil {
		log.WithError(err).Fatal("failed loading configuration")
	}

	if cfg.version {
		fmt.Println(ncmpp.VersionString())
		return
	}

	logLevel, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatalf("invalid log level: %s", cfg.LogLevel)
	}
	log.SetLevel(logLevel)

	app := &App{
		cfg: cfg,
		log: LogrusAdapter{log.NewEntry(log.StandardLogger())},
	}
	if err := app.run(); err != nil {
		app.log.WithError(err).Error("fatal error")
		os.Exit(1)
	}
}

func (app *App) run() error {
	app.log.Infof("starting with %d workers", app.cfg.Threads)

	start := time.Now()

	if app.cfg.InputList != "" {
		if err := app.runBatchMode(); err != nil {
			return err
		}
	} else {
		if err := app.runFallbackMode(); err != nil {
			return err
		}
	}

	app.log.Infof("processing complete: %d decoded, %d failed", app.completed.Load(), app.failed.Load())
	if app.cfg.ShowTime {
		app.log.Infof("total time elapsed: %s", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// runBatchMode pairs up the input and output list files line by line.
func (app *App) runBatchMode() error {
	inputs, err := readFileLines(app.cfg.InputList)
	if err != nil {
		return err
	}
	outputs, err := readFileLines(app.cfg.Output)
	if err != nil {
		return err
	}

	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("input or output file list is empty")
	}
	if len(inputs) != len(outputs) {
		return fmt.Errorf("input and output lists must have the same number of lines (%d vs %d)", len(inputs), len(outputs))
	}

	app.log.Infof("processing %d files in batch mode", len(inputs))

	p := pool.New(app.cfg.Threads)
	for i := range inputs {
		inputPath, base := inputs[i], outputs[i]
		p.Submit(func() { app.processFile(inputPath, base) })
	}
	p.Shutdown()
	return nil
}

// runFallbackMode scans the working directory for containers and writes
// the results under the output directory.
func (app *App) runFallbackMode() error {
	files, err := findContainers(".")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		app.log.Warn("no .ncm files found to process")
		return nil
	}

	app.log.Infof("found %d .ncm files to process", len(files))

	p := pool.New(app.cfg.Threads)
	for _, inputPath := range files {
		base := filepath.Join(app.cfg.Output, outputBase(inputPath))
		p.Submit(func() { app.processFile(inputPath, base) })
	}
	p.Shutdown()
	return nil
}

// processFile decodes one container. Failures are reported and counted
// but never abort the rest of the batch.
func (app *App) processFile(inputPath, base string) {
	fileLog := app.log.WithField("file", filepath.Base(inputPath))
	fileLog.Debug("processing")

	start := time.Now()
	res, err := ncm.DecodeFile(inputPath, base, ncm.Options{
		Log:           app.log,
		StrictMagic:   app.cfg.Strict,
		DefaultFormat: app.cfg.DefaultFormat,
	})
	if err != nil {
		fileLog.WithError(err).Warn("failed decoding container")
		app.failed.Add(1)
		return
	}

	if app.cfg.EmbedCover {
		app.embedTags(fileLog, res)
	}

	fileLog.Infof("completed in %s", time.Since(start).Round(time.Millisecond))
	app.completed.Add(1)
}

// embedTags pushes the recovered metadata and cover back into the decoded
// file. Tagging problems don't count the file as failed, the audio itself
// is already intact on disk.
func (app *App) embedTags(fileLog ncmpp.Logger, res *ncm.Result) {
	var cover []byte
	if res.CoverPath != "" {
		var err error
		if cover, err = os.ReadFile(res.CoverPath); err != nil {
			fileLog.WithError(err).Warn("failed reading extracted cover")
			cover = nil
		}
	}

	if err := tag.Embed(fileLog, res.AudioPath, res.Meta, cover); err != nil {
		fileLog.WithError(err).Warn("failed embedding tags")
		return
	}

	if res.CoverPath != "" && !app.cfg.KeepCover {
		if err := os.Remove(res.CoverPath); err != nil {
			fileLog.WithError(err).Warn("failed removing extracted cover")
		}
	}
}
