package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"detectbench/internal/bench"
	"detectbench/internal/config"
	"detectbench/internal/entity"
	"detectbench/pkg/browser"
	"detectbench/pkg/log"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var _ bench.Page = (*browser.Browser)(nil)

type flags struct {
	Input       string `validate:"required,dir"`
	Strategy    string `validate:"required,oneof=A B C"`
	Server      string `validate:"required,url"`
	Output      string `validate:"required"`
	Headless    bool
	Timeout     int    `validate:"gt=0"`
	BrowserPath string `validate:"omitempty,file"`
	SkipCheck   bool
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:           "bench",
		Short:         "Drive the operator page over a directory of images and record timings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Strategy = strings.ToUpper(f.Strategy)
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.Input, "input", "", "directory of images to benchmark")
	cmd.Flags().StringVar(&f.Strategy, "strategy", "", "strategy to exercise (A, B or C)")
	cmd.Flags().StringVar(&f.Server, "server", "http://localhost:3000", "base URL of the detection service")
	cmd.Flags().StringVar(&f.Output, "output", "./batch_result", "directory receiving <strategy>/metrics.csv and artifacts")
	cmd.Flags().BoolVar(&f.Headless, "headless", true, "run the browser without a window")
	cmd.Flags().IntVar(&f.Timeout, "timeout", int(bench.DefaultTimeout/time.Second), "seconds to wait for each image to finish")
	cmd.Flags().StringVar(&f.BrowserPath, "browser-path", "", "browser executable, defaults to the first Chromium found")
	cmd.Flags().BoolVar(&f.SkipCheck, "skip-health-check", false, "do not probe /health before starting")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("strategy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}

	if err := config.NewValidator().Struct(f); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	strategy, err := entity.ParseStrategy(f.Strategy)
	if err != nil {
		return err
	}

	if !f.SkipCheck {
		if err := checkHealth(ctx, f.Server); err != nil {
			return err
		}
	}

	page, err := browser.New(ctx, logger, browser.Options{
		Headless: f.Headless,
		ExecPath: f.BrowserPath,
	})
	if err != nil {
		return err
	}
	defer page.Close()

	driver := bench.NewDriver(page, logger, bench.Options{
		Input:    f.Input,
		Strategy: strategy,
		Server:   f.Server,
		Output:   f.Output,
		Timeout:  time.Duration(f.Timeout) * time.Second,
	})

	report, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"runs":   len(report.Runs),
		"output": driver.OutputDir(),
	}).Info("Benchmark complete")
	return nil
}

func checkHealth(ctx context.Context, server string) error {
	resp, err := resty.New().
		SetTimeout(10 * time.Second).
		R().
		SetContext(ctx).
		Get(strings.TrimRight(server, "/") + "/health")
	if err != nil {
		return fmt.Errorf("server %s unreachable: %w", server, err)
	}
	if resp.IsError() {
		return fmt.Errorf("server %s unhealthy: status %d", server, resp.StatusCode())
	}
	return nil
}
