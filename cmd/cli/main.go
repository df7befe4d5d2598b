package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/profile-agent/internal/business"
	"github.com/profile-agent/internal/config"
	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/storage"
	"github.com/profile-agent/internal/storage/sqlite"
	"github.com/profile-agent/pkg/cache"
	"github.com/profile-agent/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "profile-agent",
		Short: "Business Profile automation agent",
		Long: `Manages locations for automated post publishing and review replies.
The background work itself runs in the profile-engine daemon.`,
		PersistentPreRunE: initializeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(oauthCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(locationsCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(repliesCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func newAccountService() *business.AccountService {
	oauthManager := business.NewOAuthManager(cfg.Google, repo, log)
	return business.NewAccountService(oauthManager, cache.New(), log)
}

// ============ OAUTH COMMANDS ============

func oauthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Google OAuth management",
	}

	cmd.AddCommand(oauthLoginCmd())
	cmd.AddCommand(oauthStatusCmd())
	cmd.AddCommand(oauthExportCmd())
	return cmd
}

func oauthLoginCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start Google OAuth login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			oauthManager := business.NewOAuthManager(cfg.Google, repo, log)

			fmt.Printf("Starting OAuth server on port %d...\n", port)
			authURL, err := oauthManager.StartOAuthServer(ctx, port)
			if err != nil {
				return fmt.Errorf("OAuth failed: %w", err)
			}

			fmt.Printf("\nPlease open this URL in your browser:\n%s\n", authURL)
			fmt.Println("\nAuthentication successful!")

			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port for OAuth callback server")
	return cmd
}

func oauthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check OAuth token status",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := repo.GetToken(context.Background(), "google")
			if err != nil {
				fmt.Println("Status: Not authenticated")
				fmt.Println("Run 'profile-agent oauth login' to authenticate")
				return nil
			}

			fmt.Printf("Status:     %s\n", map[bool]string{true: "Expired", false: "Valid"}[token.IsExpired()])
			fmt.Printf("Expires at: %s\n", token.ExpiresAt.Format(time.RFC1123))

			if token.IsExpired() && token.RefreshToken == "" {
				fmt.Println("\nToken expired with no refresh token. Run 'profile-agent oauth login' to re-authenticate")
			}

			return nil
		},
	}
}

func oauthExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export OAuth token for environment variables (headless deployment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := repo.GetToken(context.Background(), "google")
			if err != nil {
				return fmt.Errorf("no token found - run 'oauth login' first: %w", err)
			}

			fmt.Println("# Add these to your deployment environment:")
			fmt.Printf("PROFILE_GOOGLE_ACCESS_TOKEN=%s\n", token.AccessToken)
			fmt.Printf("PROFILE_GOOGLE_REFRESH_TOKEN=%s\n", token.RefreshToken)
			fmt.Printf("PROFILE_GOOGLE_TOKEN_EXPIRES_AT=%s\n", token.ExpiresAt.Format(time.RFC3339))

			return nil
		},
	}
}

// ============ ACCOUNT COMMANDS ============

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Business Profile account discovery",
	}

	cmd.AddCommand(accountsListCmd())
	return cmd
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts visible to the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := newAccountService().ListAccounts(context.Background())
			if err != nil {
				return err
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts found.")
				return nil
			}

			fmt.Printf("\n=== Accounts ===\n")
			for _, a := range accounts {
				fmt.Printf("%-40s %-30s %s\n", a.Name, a.AccountName, a.Type)
			}
			return nil
		},
	}
}

// ============ LOCATION COMMANDS ============

func locationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Location management",
	}

	cmd.AddCommand(locationsDiscoverCmd())
	cmd.AddCommand(locationsConnectCmd())
	cmd.AddCommand(locationsListCmd())
	cmd.AddCommand(locationsEnableCmd())
	cmd.AddCommand(locationsDisableCmd())
	cmd.AddCommand(locationsDisconnectCmd())
	return cmd
}

func locationsDiscoverCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List locations under an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				account = cfg.Google.AccountID
			}
			if account == "" {
				return fmt.Errorf("no account given; use --account or set google.account_id")
			}

			locations, err := newAccountService().ListLocations(context.Background(), account)
			if err != nil {
				return err
			}

			if len(locations) == 0 {
				fmt.Println("No locations found.")
				return nil
			}

			fmt.Printf("\n=== Locations under %s ===\n", account)
			for _, l := range locations {
				fmt.Printf("%-40s %-30s %s\n", l.Name, l.Title, l.WebsiteURI)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account name (accounts/{id})")
	return cmd
}

func locationsConnectCmd() *cobra.Command {
	var businessName, categories, keywords string

	cmd := &cobra.Command{
		Use:   "connect [location-id]",
		Short: "Connect a location for automation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			locationID := args[0]

			if _, err := repo.GetAutomationConfig(ctx, locationID); err == nil {
				return fmt.Errorf("location %s is already connected", locationID)
			}

			if businessName == "" {
				// Resolve the title from the account listing when possible
				account := cfg.Google.AccountID
				if account != "" {
					locations, err := newAccountService().ListLocations(ctx, account)
					if err == nil {
						for _, l := range locations {
							if strings.HasSuffix(l.Name, "/"+locationID) || l.Name == locationID {
								businessName = l.Title
								break
							}
						}
					}
				}
			}
			if businessName == "" {
				return fmt.Errorf("could not resolve business name; pass --name")
			}

			autoCfg := models.NewAutomationConfig(locationID, businessName)
			if categories != "" {
				autoCfg.Categories = strings.Split(categories, ",")
			}
			if keywords != "" {
				autoCfg.Keywords = strings.Split(keywords, ",")
			}
			if err := repo.SaveAutomationConfig(ctx, autoCfg); err != nil {
				return fmt.Errorf("failed to save automation config: %w", err)
			}

			replyCfg := &models.ReviewReplyConfig{LocationID: locationID}
			if err := repo.SaveReviewReplyConfig(ctx, replyCfg); err != nil {
				return fmt.Errorf("failed to save reply config: %w", err)
			}

			fmt.Printf("Connected %s (%s).\n", businessName, locationID)
			fmt.Println("Automation is off by default; run 'locations enable' to start posting.")
			return nil
		},
	}

	cmd.Flags().StringVar(&businessName, "name", "", "Business name (resolved from the account listing if omitted)")
	cmd.Flags().StringVar(&categories, "categories", "", "Comma-separated business categories")
	cmd.Flags().StringVar(&keywords, "keywords", "", "Comma-separated content keywords")
	return cmd
}

func locationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := repo.ListAutomationConfigs(context.Background())
			if err != nil {
				return err
			}

			if len(configs) == 0 {
				fmt.Println("No locations connected.")
				return nil
			}

			fmt.Printf("\n%-24s %-28s %-9s %-10s %s\n", "LOCATION", "BUSINESS", "ENABLED", "FREQUENCY", "NEXT RUN")
			for _, c := range configs {
				nextRun := "-"
				if c.NextRunAt != nil {
					nextRun = c.NextRunAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-24s %-28s %-9v %-10s %s\n", c.LocationID, c.BusinessName, c.Enabled, c.Frequency, nextRun)
			}
			return nil
		},
	}
}

func setEnabled(locationID string, enabled bool) error {
	ctx := context.Background()
	c, err := repo.GetAutomationConfig(ctx, locationID)
	if err != nil {
		return fmt.Errorf("location not connected: %w", err)
	}

	c.Enabled = enabled
	if !enabled {
		c.NextRunAt = nil
	}
	if err := repo.SaveAutomationConfig(ctx, c); err != nil {
		return err
	}

	fmt.Printf("Location %s %s.\n", locationID, map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return nil
}

func locationsEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable [location-id]",
		Short: "Enable automated posting for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(args[0], true)
		},
	}
}

func locationsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable [location-id]",
		Short: "Disable automated posting for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(args[0], false)
		},
	}
}

func locationsDisconnectCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "disconnect [location-id]",
		Short: "Remove a location and all its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locationID := args[0]

			if !yes {
				return fmt.Errorf("this deletes the location's config, reply settings and reply history; re-run with --yes to confirm")
			}

			if err := repo.DeleteLocation(context.Background(), locationID); err != nil {
				return fmt.Errorf("failed to disconnect: %w", err)
			}

			fmt.Printf("Location %s disconnected.\n", locationID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

// ============ SCHEDULE COMMANDS ============

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Posting schedule management",
	}

	cmd.AddCommand(scheduleSetCmd())
	cmd.AddCommand(scheduleRunNowCmd())
	return cmd
}

func scheduleSetCmd() *cobra.Command {
	var frequency, timeOfDay, customTimes string

	cmd := &cobra.Command{
		Use:   "set [location-id]",
		Short: "Set the posting schedule for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := repo.GetAutomationConfig(ctx, args[0])
			if err != nil {
				return fmt.Errorf("location not connected: %w", err)
			}

			if frequency != "" {
				c.Frequency = models.Frequency(frequency)
			}
			if timeOfDay != "" {
				c.TimeOfDay = timeOfDay
			}
			if customTimes != "" {
				c.CustomTimes = strings.Split(customTimes, ",")
			}

			// A schedule change invalidates the previously computed slot;
			// the engine recomputes it on the next tick.
			c.NextRunAt = nil
			if err := repo.SaveAutomationConfig(ctx, c); err != nil {
				return err
			}

			fmt.Printf("Schedule updated: %s at %s\n", c.Frequency, c.TimeOfDay)
			if len(c.CustomTimes) > 0 {
				fmt.Printf("Custom times: %s\n", strings.Join(c.CustomTimes, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&frequency, "frequency", "", "daily, alternate, weekly or custom")
	cmd.Flags().StringVar(&timeOfDay, "time", "", "Time of day (HH:MM)")
	cmd.Flags().StringVar(&customTimes, "times", "", "Comma-separated HH:MM list for custom frequency")
	return cmd
}

func scheduleRunNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-now [location-id]",
		Short: "Make a location due on the engine's next tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := repo.GetAutomationConfig(ctx, args[0])
			if err != nil {
				return fmt.Errorf("location not connected: %w", err)
			}
			if !c.Enabled {
				return fmt.Errorf("location is disabled; enable it first")
			}

			now := time.Now()
			c.NextRunAt = &now
			if err := repo.SaveAutomationConfig(ctx, c); err != nil {
				return err
			}

			fmt.Println("Location will run on the engine's next poll.")
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}

// ============ REPLY COMMANDS ============

func repliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replies",
		Short: "Review auto-reply management",
	}

	cmd.AddCommand(repliesConfigureCmd())
	cmd.AddCommand(repliesStatusCmd())
	return cmd
}

func repliesConfigureCmd() *cobra.Command {
	var enable, disable bool
	var minRating, maxRating int
	var template string

	cmd := &cobra.Command{
		Use:   "configure [location-id]",
		Short: "Configure auto-reply for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := repo.GetReviewReplyConfig(ctx, args[0])
			if err != nil {
				return fmt.Errorf("location not connected: %w", err)
			}

			if enable {
				c.Enabled = true
				c.AutoReplyEnabled = true
			}
			if disable {
				c.AutoReplyEnabled = false
			}
			if cmd.Flags().Changed("min-rating") {
				c.MinRating = &minRating
			}
			if cmd.Flags().Changed("max-rating") {
				c.MaxRating = &maxRating
			}
			if cmd.Flags().Changed("template") {
				c.ReplyTemplate = template
			}

			if err := repo.SaveReviewReplyConfig(ctx, c); err != nil {
				return err
			}

			fmt.Println("Reply settings updated.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&enable, "enable", false, "Turn auto-reply on")
	cmd.Flags().BoolVar(&disable, "disable", false, "Turn auto-reply off")
	cmd.Flags().IntVar(&minRating, "min-rating", 0, "Minimum star rating to reply to (1-5)")
	cmd.Flags().IntVar(&maxRating, "max-rating", 0, "Maximum star rating to reply to (1-5)")
	cmd.Flags().StringVar(&template, "template", "", "Reply template; empty uses generated text")
	return cmd
}

func repliesStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [location-id]",
		Short: "Show the reply settings for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := repo.GetReviewReplyConfig(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("location not connected: %w", err)
			}

			ratingBound := func(v *int) string {
				if v == nil {
					return "-"
				}
				return strconv.Itoa(*v)
			}

			fmt.Printf("\n=== Reply Settings: %s ===\n", c.LocationID)
			fmt.Printf("Auto-reply: %v\n", c.AutoReplyEnabled)
			fmt.Printf("Min rating: %s\n", ratingBound(c.MinRating))
			fmt.Printf("Max rating: %s\n", ratingBound(c.MaxRating))
			if c.ReplyTemplate != "" {
				fmt.Printf("Template:   %s\n", c.ReplyTemplate)
			} else {
				fmt.Println("Template:   (generated)")
			}
			return nil
		},
	}
}

// ============ STATS COMMANDS ============

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show run statistics per location",
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := repo.ListAutomationConfigs(context.Background())
			if err != nil {
				return err
			}

			if len(configs) == 0 {
				fmt.Println("No locations connected.")
				return nil
			}

			fmt.Printf("\n%-24s %-8s %-8s %-8s %-9s %s\n", "LOCATION", "RUNS", "OK", "FAILED", "STATUS", "LAST RUN")
			for _, c := range configs {
				lastRun := "-"
				if c.LastRunAt != nil {
					lastRun = c.LastRunAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-24s %-8d %-8d %-8d %-9s %s\n",
					c.LocationID, c.TotalRuns, c.SuccessCount, c.FailureCount, c.LastStatus, lastRun)
			}
			return nil
		},
	}
}
