package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wesleyorama2/colstorm/internal/config"
	"github.com/wesleyorama2/colstorm/internal/dbconn"
	"github.com/wesleyorama2/colstorm/internal/hoststats"
	"github.com/wesleyorama2/colstorm/internal/output"
	"github.com/wesleyorama2/colstorm/internal/report"
	"github.com/wesleyorama2/colstorm/internal/runner"
)

// runLoad resolves the configuration, runs the load and reports the outcome.
// Every failure, including a run that completed without passing, returns an
// error so the process exits 1.
func runLoad(cmd *cobra.Command, args []string) error {
	// Past argument validation, usage output no longer helps.
	cmd.SilenceUsage = true

	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	jsonOut := v.GetBool("json")
	consoleOut := cmd.OutOrStdout()
	if jsonOut {
		consoleOut = cmd.ErrOrStderr()
	}
	console := output.NewConsole(output.ConsoleConfig{
		Out:     consoleOut,
		Err:     cmd.ErrOrStderr(),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no-color"),
	})

	logger := slog.New(slog.DiscardHandler)
	if v.GetBool("verbose") {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cfg, thresholds, err := prepareRun(v, args)
	if err != nil {
		console.Errorf("%v", err)
		return reported(err)
	}

	outputPath := v.GetString("output")
	var format report.Format
	if s := v.GetString("format"); s != "" {
		if format, err = report.ParseFormat(s); err != nil {
			err = &config.Error{Field: "format", Message: err.Error()}
			console.Errorf("%v", err)
			return reported(err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := cfg.Workers
	if cfg.Mode == config.ModeSchema {
		sessions = 1
	}
	source, err := dbconn.NewSource(cfg.ConnString, dbconn.Options{
		MaxSessions:    sessions,
		ConnectTimeout: cfg.ConnectTimeout,
		ExecTimeout:    cfg.ExecTimeout,
		Logger:         logger,
	})
	if err != nil {
		console.Errorf("%v", err)
		return reported(err)
	}
	defer source.Close()

	r, err := runner.New(source, console, runner.Options{
		Mode:          cfg.Mode,
		Statement:     cfg.Statement,
		Workers:       cfg.Workers,
		Repeat:        cfg.Repeat,
		ProgressEvery: cfg.ProgressEvery,
		FailFast:      cfg.FailFast,
		Rate:          cfg.Rate,
		Thresholds:    thresholds,
		Logger:        logger,
	})
	if err != nil {
		console.Errorf("%v", err)
		return reported(err)
	}

	effective := r.Options()
	console.Header(output.RunInfo{
		Driver:  source.Driver(),
		Target:  dbconn.Redact(cfg.ConnString),
		Mode:    cfg.Mode.String(),
		Workers: effective.Workers,
		Repeat:  effective.Repeat,
	})
	logger.Debug("starting run",
		"driver", source.Driver(),
		"connect_timeout", durationSetting(cfg.ConnectTimeout),
		"exec_timeout", durationSetting(cfg.ExecTimeout),
		"thresholds", len(thresholds))

	wantReport := outputPath != "" || jsonOut
	var sampler *hoststats.Sampler
	if wantReport {
		sampler = hoststats.NewSampler()
		sampler.Begin(ctx)
	}

	result, runErr := r.Run(ctx)

	if result != nil {
		console.PrintSummary(result)
	}
	if runErr != nil {
		console.Errorf("%v", runErr)
	}

	if wantReport {
		// The run context may be cancelled by now.
		host := sampler.End(context.Background())
		for _, w := range host.Warnings {
			logger.Debug("host stats unavailable", "detail", w)
		}

		cfg.Workers, cfg.Repeat, cfg.FailFast = effective.Workers, effective.Repeat, effective.FailFast
		doc := report.NewDocument(version, cfg)
		doc.Complete(result, &host, runErr)

		if err := writeReports(cmd, doc, outputPath, format, jsonOut); err != nil {
			console.Errorf("%v", err)
			return reported(errors.Join(runErr, err))
		}
		if outputPath != "" {
			console.Printf("Report: %s\n", outputPath)
		}
	}

	if runErr != nil {
		return reported(runErr)
	}
	if !result.Passed {
		return reported(errRunFailed)
	}
	return nil
}

// prepareRun resolves and validates the configuration and parses the
// thresholds. The error-rate threshold always comes first.
func prepareRun(v *viper.Viper, args []string) (config.RunConfig, []runner.Threshold, error) {
	cfg, err := resolveRunConfig(v, args)
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	extra, err := runner.ParseThresholds(cfg.Thresholds)
	if err != nil {
		return cfg, nil, &config.Error{Field: "threshold", Message: "invalid threshold", Err: err}
	}
	thresholds := append([]runner.Threshold{runner.ErrorRateThreshold(cfg.MaxErrorRate)}, extra...)

	return cfg, thresholds, nil
}

func writeReports(cmd *cobra.Command, doc *report.Document, outputPath string, format report.Format, jsonOut bool) error {
	if outputPath != "" {
		if err := report.WriteFile(outputPath, doc, format); err != nil {
			return err
		}
	}
	if jsonOut {
		if err := report.Write(cmd.OutOrStdout(), doc, report.FormatJSON); err != nil {
			return err
		}
	}
	return nil
}
