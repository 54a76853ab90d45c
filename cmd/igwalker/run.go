package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igwalker/pkg/auth"
	"igwalker/pkg/checkpoint"
	"igwalker/pkg/config"
	"igwalker/pkg/driver"
	"igwalker/pkg/logger"
	"igwalker/pkg/models"
	"igwalker/pkg/scraper"
	"igwalker/pkg/session"
)

var (
	// Run command flags
	postsQuota   int
	reelsQuota   int
	contentType  string
	minSuccess   int
	noSession    bool
	storePath    string
	minInterval  time.Duration
	accountName  string
	driverName   string
	forceRestart bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <handle>...",
	Short: "Walk Instagram profiles and collect content URLs",
	Long: `Walk one or more Instagram profiles through their post and reel
modals, collecting content URLs up to the configured quotas.

Progress is checkpointed after every collected item, so an interrupted
run resumes where it left off. The aggregate report is written to
stdout as JSON; logs go to stderr.

Credentials must be configured first:
  - Stored credentials (use 'igwalker auth login' to store)
  - Environment variables (IGWALKER_USERNAME and IGWALKER_PASSWORD)`,
	Example: `  # Walk a profile with default quotas (4 posts, 2 reels)
  igwalker run johndoe

  # Walk several profiles, posts only, 10 each
  igwalker run johndoe janedoe --type posts --posts 10

  # Ignore the stored session and checkpoint, start fresh
  igwalker run johndoe --no-session --force-restart

  # Emit only the JSON report
  igwalker run johndoe --quiet`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWalk,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&postsQuota, "posts", 4, "posts to collect per profile")
	runCmd.Flags().IntVar(&reelsQuota, "reels", 2, "reels to collect per profile")
	runCmd.Flags().StringVarP(&contentType, "type", "t", "both", "content to walk (posts, reels, both)")
	runCmd.Flags().IntVar(&minSuccess, "min-success", 0, "profiles that must succeed for exit status 0 (0 = all)")
	runCmd.Flags().BoolVar(&noSession, "no-session", false, "ignore persisted sessions, always log in fresh")
	runCmd.Flags().StringVar(&storePath, "store", "", "checkpoint database path (default: platform data directory)")
	runCmd.Flags().DurationVar(&minInterval, "min-interval", 10*time.Second, "minimum delay between remote operations")
	runCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	runCmd.Flags().StringVar(&driverName, "driver", "scripted", "registered navigation driver to use")
	runCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "drop existing checkpoints before walking")
}

func runWalk(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	// Only flags the user actually set override file and env config.
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("posts") {
		flags["posts"] = postsQuota
	}
	if cmd.Flags().Changed("reels") {
		flags["reels"] = reelsQuota
	}
	if cmd.Flags().Changed("type") {
		flags["content-type"] = contentType
	}
	if cmd.Flags().Changed("min-success") {
		flags["min-success"] = minSuccess
	}
	if noSession {
		flags["no-session"] = true
	}
	if storePath != "" {
		flags["store"] = storePath
	}
	if cmd.Flags().Changed("min-interval") {
		flags["min-interval"] = minInterval
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("igwalker starting")

	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	factory, err := driver.OpenFactory(driverName)
	if err != nil {
		return err
	}

	store, err := checkpoint.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	selection, err := models.ParseSelection(cfg.Walk.ContentType)
	if err != nil {
		return err
	}

	profiles := make([]models.Profile, 0, len(args))
	for _, handle := range args {
		profiles = append(profiles, models.Profile{
			Handle:     strings.TrimSpace(handle),
			Account:    accountName,
			PostsQuota: cfg.Walk.PostsPerProfile,
			ReelsQuota: cfg.Walk.ReelsPerProfile,
			Selection:  selection,
		})
	}

	s := scraper.New(cfg, store, factory, managerSource{manager}, log)
	s.Restart = forceRestart

	// SIGINT/SIGTERM cancel the run; checkpoints are already durable.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := s.Run(ctx, profiles)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !s.ThresholdMet(report) {
		log.WithField("successful", report.Summary.SuccessfulProfiles).Error("run below success threshold")
		return fmt.Errorf("only %d of %d profiles succeeded",
			report.Summary.SuccessfulProfiles, report.Summary.TotalProfiles)
	}
	return nil
}

// managerSource adapts the credential manager to the orchestrator's
// credential interface.
type managerSource struct {
	manager *auth.Manager
}

func (m managerSource) Resolve(account string) (session.Credentials, error) {
	var (
		acct *auth.Account
		err  error
	)
	if account != "" {
		acct, err = m.manager.Retrieve(account)
	} else {
		acct, err = m.manager.RetrieveDefault()
	}
	if err != nil {
		return session.Credentials{}, err
	}
	return session.Credentials{Username: acct.Username, Password: acct.Password}, nil
}
