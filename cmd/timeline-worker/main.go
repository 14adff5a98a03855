package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/api"
	"github.com/masa-finance/timeline-worker/internal/config"
	"github.com/masa-finance/timeline-worker/internal/jobs"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
	"github.com/masa-finance/timeline-worker/internal/jobserver"
	"github.com/masa-finance/timeline-worker/internal/timeline"
	"github.com/masa-finance/timeline-worker/pkg/client"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "timeline-worker",
		Short:        "Acquire account timelines from the upstream API",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newSubmitCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and streaming API with the background job server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jc := config.ReadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return api.Start(ctx, jc)
		},
	}
}

// filterFlags binds the record filter to command flags shared by fetch and submit.
type filterFlags struct {
	filter types.FilterConfig
	since  string
	until  string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.filter.MinLikes, "min-likes", 0, "Minimum like count")
	cmd.Flags().IntVar(&f.filter.MinRetweets, "min-retweets", 0, "Minimum retweet count")
	cmd.Flags().IntVar(&f.filter.MinComments, "min-comments", 0, "Minimum comment count")
	cmd.Flags().IntVar(&f.filter.MinTotalEngagement, "min-engagement", 0, "Minimum likes+retweets+comments")
	cmd.Flags().BoolVar(&f.filter.ExcludeRetweets, "exclude-retweets", false, "Drop retweets")
	cmd.Flags().BoolVar(&f.filter.ExcludeReplies, "exclude-replies", false, "Drop replies")
	cmd.Flags().BoolVar(&f.filter.MediaOnly, "media-only", false, "Keep only records that link media")
	cmd.Flags().IntVarP(&f.filter.MaxRecords, "max-records", "n", 0, "Stop after this many accepted records (0 = no limit)")
	cmd.Flags().StringVar(&f.since, "since", "", "Earliest record time (RFC 3339)")
	cmd.Flags().StringVar(&f.until, "until", "", "Latest record time (RFC 3339)")
}

func (f *filterFlags) build() (types.FilterConfig, error) {
	filter := f.filter
	if f.since != "" {
		t, err := time.Parse(time.RFC3339, f.since)
		if err != nil {
			return filter, fmt.Errorf("invalid --since: %w", err)
		}
		filter.DateRange.Start = &t
	}
	if f.until != "" {
		t, err := time.Parse(time.RFC3339, f.until)
		if err != nil {
			return filter, fmt.Errorf("invalid --until: %w", err)
		}
		filter.DateRange.End = &t
	}
	return filter, filter.Validate()
}

func newFetchCmd() *cobra.Command {
	var (
		flags      filterFlags
		credential string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <handle>",
		Short: "Acquire one timeline and print each accepted record as a JSON line",
		Long: "Runs a single acquisition in the foreground. Every event is written to stdout as one JSON object per line. " +
			"Interrupting the command cancels the run after the page in flight.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jc := config.ReadConfig()

			target := timeline.NormalizeTarget(args[0])
			if target == "" {
				return jobserver.ErrEmptyTarget
			}
			filter, err := flags.build()
			if err != nil {
				return err
			}
			if credential == "" {
				credential = jc.GetUpstreamConfig().APIKey
			}

			run := jc.GetRunConfig()
			opts := []jobs.OrchestratorOption{
				jobs.WithMaxPages(run.MaxPages),
				jobs.WithMaxSameCursor(run.MaxSameCursor),
				jobs.WithPollInterval(run.PollInterval),
			}
			if save {
				artifacts, err := jobserver.NewFileArtifactStore(jc.DataDir())
				if err != nil {
					return err
				}
				opts = append(opts, jobs.WithArtifactSaver(artifacts))
			}
			orchestrator := jobs.NewOrchestrator(api.NewPaginator(jc, nil, stats.OriginCLI), opts...)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			control := jobs.NewRunControl()
			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				select {
				case <-sigs:
					logrus.Info("Interrupt received, cancelling after the current page")
					control.Cancel()
				case <-ctx.Done():
					return
				}
				select {
				case <-sigs:
					cancel()
				case <-ctx.Done():
				}
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			dedup := timeline.NewDedupIndex()
			sink := jobs.NewRealtimeSink(func(ev types.StreamEvent) error {
				return enc.Encode(ev)
			}, dedup)

			req := jobs.RunRequest{
				Target:     target,
				Filter:     filter,
				Credential: credential,
				Dedup:      dedup,
				Origin:     stats.OriginCLI,
			}
			result, err := orchestrator.Run(ctx, req, sink, control)
			if err != nil {
				return err
			}
			logrus.Infof("Run for %s finished: %d accepted over %d pages (%s)", target, result.Stats.TotalAccepted, result.Stats.PagesFetched, result.StopReason)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&credential, "credential", "c", "", "Upstream API key (defaults to UPSTREAM_API_KEY)")
	cmd.Flags().BoolVar(&save, "save", false, "Store the accepted records as an artifact under DATA_DIR")

	return cmd
}

func newSubmitCmd() *cobra.Command {
	var (
		flags      filterFlags
		server     string
		apiKey     string
		credential string
		wait       bool
		poll       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <handle>",
		Short: "Queue a background job on a running worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.build()
			if err != nil {
				return err
			}
			if poll <= 0 {
				return fmt.Errorf("--poll must be positive")
			}

			c, err := client.NewClient(server,
				client.APIKey(apiKey),
				client.PollInterval(poll),
				client.MaxPollAttempts(max(1, int(time.Hour/poll))),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			jr, err := c.SubmitJob(ctx, types.JobRequest{Target: args[0], Filter: filter, Credential: credential})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !wait {
				return enc.Encode(types.JobResponse{UID: jr.UUID})
			}

			artifact, err := jr.Get(ctx)
			if err != nil {
				return err
			}
			return enc.Encode(artifact)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&server, "server", "s", "http://127.0.0.1:8080", "Worker base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("API_KEY"), "Worker API key")
	cmd.Flags().StringVarP(&credential, "credential", "c", "", "Upstream API key for this job")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job and print its records")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "Status poll interval when waiting")

	return cmd
}
