package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nahidhasan98/netconf-relay/internal/config"
	"github.com/nahidhasan98/netconf-relay/internal/models"
	"github.com/nahidhasan98/netconf-relay/internal/pipeline"
)

var (
	flagRevision string
	flagLimit    []string
	flagPlaybook string
	flagNotify   bool
	flagNoSync   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the playbook once against a revision",
	Long: `run syncs the working copy to --revision and runs the playbook, limited
to --limit when given. The report is printed and, with --notify, delivered
to the configured chat channels.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if strings.TrimSpace(flagRevision) == "" {
			return fmt.Errorf("--revision is required")
		}
		if err := loadConfig(); err != nil {
			return err
		}
		if err := checkRepository(cfg, flagNoSync); err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := buildServices(ctx, cfg, log, flagNoSync)
		if err != nil {
			return err
		}
		defer s.close(context.WithoutCancel(ctx), log)

		if flagNotify && s.waClient != nil {
			if err := s.waClient.Start(ctx); err != nil {
				log.WarnErr("WhatsApp is not available for this run", err)
			}
		}

		out := s.pipeline.Trigger(ctx, manualPush(strings.TrimSpace(flagRevision)), flagPlaybook, flagLimit, flagNotify)
		printOutcome(cmd.OutOrStdout(), out)

		if !out.Run.Succeeded() {
			return fmt.Errorf("run failed during %s", out.Run.Stage)
		}
		if flagNotify && out.DeliveryErr != nil {
			return fmt.Errorf("report delivery failed: %w", out.DeliveryErr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&flagRevision, "revision", "r", "", "commit to check out and apply")
	runCmd.Flags().StringSliceVarP(&flagLimit, "limit", "l", nil, "restrict the run to these targets (repeatable or comma separated)")
	runCmd.Flags().StringVarP(&flagPlaybook, "playbook", "p", "", "playbook to run (defaults to the configured playbook)")
	runCmd.Flags().BoolVar(&flagNotify, "notify", false, "deliver the report to the configured notifiers")
	runCmd.Flags().BoolVar(&flagNoSync, "no-sync", false, "run against the working copy without fetching")
}

// checkRepository refuses runs that would sync or execute in a directory
// the configuration does not name
func checkRepository(c *config.Config, noSync bool) error {
	if c.Repository.RepoPath() == "" {
		return fmt.Errorf("no working copy configured: set REPO_URL or REPO_DIR")
	}
	if !noSync && c.Repository.URL == "" {
		return fmt.Errorf("REPO_URL is required unless --no-sync is given")
	}
	return nil
}

// manualPush describes a hand-triggered run in push terms so the report
// layout stays the same
func manualPush(revision string) *models.PushNotification {
	name := strings.TrimSuffix(path.Base(strings.TrimRight(cfg.Repository.URL, "/")), ".git")
	return &models.PushNotification{
		Ref:          "manual",
		Repository:   models.Repository{Name: name},
		HeadCommitID: revision,
	}
}

func printOutcome(w io.Writer, out *pipeline.Outcome) {
	run := out.Run
	fmt.Fprintf(w, "run:      %s\n", out.RunID)
	fmt.Fprintf(w, "revision: %s\n", run.Revision)
	fmt.Fprintf(w, "playbook: %s\n", run.Playbook)
	if len(run.Limit) > 0 {
		fmt.Fprintf(w, "limit:    %s\n", strings.Join(run.Limit, ","))
	} else {
		fmt.Fprintln(w, "limit:    all targets")
	}
	fmt.Fprintf(w, "outcome:  %s (%s, %s)\n", run.Outcome, run.Stage, run.Duration.Round(time.Millisecond))

	if run.Stdout != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(run.Stdout, "\n"))
	}
	if run.Stderr != "" {
		fmt.Fprintf(w, "\nstderr:\n%s\n", strings.TrimRight(run.Stderr, "\n"))
	}
	if out.DeliveryErr != nil {
		fmt.Fprintf(w, "\ndelivery failed: %v\n", out.DeliveryErr)
	}
}
