package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/index"
	"github.com/mohammad-safakhou/minutes/internal/pipeline"
	"github.com/mohammad-safakhou/minutes/internal/telemetry"
	"github.com/mohammad-safakhou/minutes/provider"
)

// processCMD runs the pipeline once over a local transcript file without
// touching Postgres or Redis. Useful for trying a transcript out.
func processCMD() *cobra.Command {
	var cfgPath string
	var title string
	var format string
	var outPath string
	var cmd = &cobra.Command{
		Use:   "process <transcript-file>",
		Short: "Process a single transcript file and print the minutes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if title == "" {
				title = filepath.Base(args[0])
			}

			prov, err := provider.New(cfg.LLM)
			if err != nil {
				return err
			}
			idx, err := index.Open("")
			if err != nil {
				return err
			}
			defer idx.Close()

			tele := telemetry.New(cfg.Telemetry, nil)
			orch := pipeline.New(cfg, log.New(os.Stderr, "[ORCH] ", log.LstdFlags), tele, prov, idx)

			rec, err := orch.Process(ctx, pipeline.Job{
				Title:      title,
				Filename:   filepath.Base(args[0]),
				Transcript: data,
			})
			if err != nil {
				return err
			}

			var out []byte
			switch format {
			case "json":
				out, err = json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
			default:
				out = []byte(pipeline.RenderMarkdown(rec))
			}
			if outPath != "" {
				return os.WriteFile(outPath, out, 0o644)
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "meeting title (default is the filename)")
	cmd.Flags().StringVar(&format, "format", "md", "output format: md or json")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write output to file instead of stdout")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/minutes.yaml)")

	return cmd
}
