package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/ragcache/answer"
)

func newAskCmd(configPath *string) *cobra.Command {
	var (
		aux      string
		k        int
		ttl      time.Duration
		noCache  bool
		asJSON   bool
		viaVoice bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, or every line of stdin when none is given",
		Long: "Answer a question in-process. Without an argument each stdin line is a " +
			"question and all of them share one answer cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(ctx) }()

			out := cmd.OutOrStdout()
			askOne := func(q string) error {
				req := answer.Request{Query: q, K: k, TTL: ttl, AuxContext: aux}
				var res answer.Result
				if noCache {
					res, err = a.orch.AskUncached(ctx, req)
				} else {
					res, err = a.orch.Ask(ctx, req)
				}
				if err != nil {
					return err
				}
				a.record(ctx, req, res, viaVoice)
				if asJSON {
					return json.NewEncoder(out).Encode(res)
				}
				printResult(out, res)
				return nil
			}

			if len(args) > 0 {
				return askOne(strings.Join(args, " "))
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				q := strings.TrimSpace(sc.Text())
				if q == "" {
					continue
				}
				if err := askOne(q); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
			return sc.Err()
		},
	}

	cmd.Flags().StringVar(&aux, "aux", "", "auxiliary context for the prompt, e.g. current vitals")
	cmd.Flags().IntVar(&k, "k", 0, "number of documents to retrieve (default from config)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime of a newly cached answer (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the answer cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON lines")
	cmd.Flags().BoolVar(&viaVoice, "via-voice", false, "mark logged conversations as voice input")
	return cmd
}

func printResult(w io.Writer, res answer.Result) {
	fmt.Fprintln(w, res.Answer)
	if len(res.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, s := range res.Sources {
			label := s.Source
			if label == "" {
				label = s.ID
			}
			if s.Title != "" {
				label = s.Title + " - " + label
			}
			fmt.Fprintf(w, "  %d. %s\n", i+1, label)
		}
	}
	if res.CacheHit {
		fmt.Fprintln(w, "(cached)")
	}
}
