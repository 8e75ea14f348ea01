package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go_upscaler/core"
	"go_upscaler/history"
	"go_upscaler/inference"
	"go_upscaler/logging"
	"go_upscaler/modelstore"
	"go_upscaler/ortruntime"
	"go_upscaler/pipeline"
	"go_upscaler/registry"
)

type app struct {
	cfg      core.Config
	log      *logging.Logger
	registry *registry.Registry
}

func (a *app) store() *modelstore.Store {
	return modelstore.New(a.cfg.CacheDir, a.log)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "upscaler",
		Short:         "Upscale, denoise and enhance images with neural super-resolution models",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newModelsCommand(a), newRunCommand(a), newHistoryCommand(a))
	return root
}

// --- models ---

func newModelsCommand(a *app) *cobra.Command {
	models := &cobra.Command{
		Use:   "models",
		Short: "Inspect and fetch the model catalog",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List available models and their cache state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.store()
			for _, desc := range a.registry.Models() {
				mark := " "
				if cached, err := store.IsCached(desc); err == nil && cached {
					mark = "*"
				}
				scale := fmt.Sprintf("%dx", desc.ScaleFactor)
				if desc.Kind != registry.KindUpscale {
					scale = string(desc.Kind)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-28s %-8s %-10s %s\n",
					mark, desc.ID, scale, core.FormatBytes(desc.SizeBytes), desc.DisplayName)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\n* cached locally")
			return nil
		},
	}

	pull := &cobra.Command{
		Use:   "pull <model-id>...",
		Short: "Download models into the local cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store := a.store()
			for _, id := range args {
				desc, err := a.registry.Find(id)
				if err != nil {
					return err
				}
				printStep("pulling %s (%s)", desc.ID, core.FormatBytes(desc.SizeBytes))
				path, err := store.EnsureAvailable(ctx, desc, printDownloadProgress)
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return err
				}
				printSuccess("%s ready at %s", desc.ID, path)
			}
			return nil
		},
	}

	models.AddCommand(list, pull)
	return models
}

func printDownloadProgress(p modelstore.ProgressInfo) {
	if p.Percent >= 0 {
		fmt.Fprintf(os.Stderr, "\r  %6.1f%%  %s  ETA %s ",
			p.Percent, p.SpeedFormatted(), p.ETA.Round(time.Second))
	} else {
		fmt.Fprintf(os.Stderr, "\r  %s downloaded  %s ",
			core.FormatBytes(p.Downloaded), p.SpeedFormatted())
	}
}

// --- run ---

func newRunCommand(a *app) *cobra.Command {
	var (
		modelID   string
		outputDir string
		suffix    string
		fake      bool
	)

	run := &cobra.Command{
		Use:   "run --model <id> <file>...",
		Short: "Upscale one or more images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range args {
				if !pipeline.IsSupportedInput(f) {
					return fmt.Errorf("unsupported input %q (accepted: jpg, jpeg, png, bmp, webp, tiff)", f)
				}
			}
			desc, err := a.registry.Find(modelID)
			if err != nil {
				return err
			}

			backend, err := a.buildBackend(desc, fake)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := pipeline.NewRunner(a.registry, a.store(), backend, a.cfg, a.log)
			defer runner.Close()

			job := pipeline.NewJob(desc.ID, args)
			job.OutputDir = outputDir
			job.Suffix = suffix

			printStep("job %s: %d file(s) through %s", job.ID, len(args), desc.DisplayName)
			started := time.Now()

			results, err := runner.RunBatch(ctx, job, printRunProgress)
			if err != nil {
				return err
			}

			a.recordHistory(job, desc, results, started)

			var done, failed, cancelled int
			for _, res := range results {
				switch res.Status {
				case pipeline.StatusDone:
					done++
				case pipeline.StatusFailed:
					failed++
				case pipeline.StatusCancelled:
					cancelled++
				}
			}
			printStatus("done", "%d", done)
			if failed > 0 {
				printStatus("failed", "%d", failed)
			}
			if cancelled > 0 {
				printStatus("cancelled", "%d", cancelled)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed", failed, len(results))
			}
			return nil
		},
	}

	run.Flags().StringVarP(&modelID, "model", "m", "", "model id (see: upscaler models list)")
	run.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: configured output dir)")
	run.Flags().StringVar(&suffix, "suffix", "", "output filename suffix (default: per model, e.g. _4x)")
	run.Flags().BoolVar(&fake, "fake-backend", false, "use the nearest-neighbor fake backend (no native runtime)")
	_ = run.MarkFlagRequired("model")
	return run
}

func (a *app) buildBackend(desc registry.ModelDescriptor, fake bool) (inference.Backend, error) {
	if fake {
		printWarning("using the fake backend: results are nearest-neighbor, not neural")
		return inference.NewFakeBackend(desc.ScaleFactor), nil
	}
	backend := ortruntime.NewBackend(ortruntime.Config{LibraryDir: a.cfg.ORTLibDir}, a.log)
	if err := backend.Probe(); err != nil {
		return nil, err
	}
	printStatus("runtime", "%s", backend.Runtime())
	return backend, nil
}

func printRunProgress(ev pipeline.ProgressEvent) {
	switch {
	case ev.FileIndex < 0:
		fmt.Fprintf(os.Stderr, "\r→ fetching model %5.1f%% ", ev.Fraction*100)
	case ev.Status == pipeline.StatusDone:
		fmt.Fprintln(os.Stderr)
		printSuccess("[%d] %s", ev.FileIndex+1, ev.Path)
	case ev.Status == pipeline.StatusFailed:
		fmt.Fprintln(os.Stderr)
		printError("[%d] %s: %v (stage: %s)", ev.FileIndex+1, ev.Path, ev.Err, ev.Stage)
	case ev.Status == pipeline.StatusCancelled:
		fmt.Fprintln(os.Stderr)
		printWarning("[%d] %s: cancelled", ev.FileIndex+1, ev.Path)
	case ev.Stage == pipeline.StageInferring:
		fmt.Fprintf(os.Stderr, "\r  [%d] inferring %5.1f%% ", ev.FileIndex+1, ev.Fraction*100)
	}
}

func (a *app) recordHistory(job pipeline.BatchJob, desc registry.ModelDescriptor, results []pipeline.FileResult, started time.Time) {
	store, err := history.Open(a.cfg.HistoryDB)
	if err != nil {
		printWarning("history unavailable: %v", err)
		return
	}
	defer store.Close()

	rec := history.JobRecord{
		ID:         job.ID.String(),
		ModelID:    desc.ID,
		FileCount:  len(results),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	files := make([]history.FileRecord, 0, len(results))
	for i, res := range results {
		if res.Status == pipeline.StatusDone {
			rec.DoneCount++
		}
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		files = append(files, history.FileRecord{
			JobID:      rec.ID,
			FileIndex:  i,
			InputPath:  res.Path,
			OutputPath: res.OutputPath,
			Status:     string(res.Status),
			Stage:      string(res.Stage),
			Error:      errMsg,
			Duration:   res.Duration,
		})
	}
	if err := store.RecordJob(rec, files); err != nil {
		printWarning("history not recorded: %v", err)
	}
}

// --- history ---

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	hist := &cobra.Command{
		Use:   "history [job-id]",
		Short: "Show past jobs, or the per-file outcomes of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(a.cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				files, err := store.JobFiles(args[0])
				if err != nil {
					return err
				}
				for _, f := range files {
					out := f.OutputPath
					if out == "" {
						out = "-"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-9s %-10s %8s  %s → %s\n",
						f.FileIndex, f.Status, f.Stage, f.Duration.Round(time.Millisecond), f.InputPath, out)
					if f.Error != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "     error: %s\n", f.Error)
					}
				}
				return nil
			}

			jobs, err := store.RecentJobs(limit)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-28s %3d/%3d ok  %s\n",
					j.StartedAt.Local().Format("2006-01-02 15:04:05"), j.ModelID, j.DoneCount, j.FileCount, j.ID)
			}
			return nil
		},
	}

	hist.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")
	return hist
}
