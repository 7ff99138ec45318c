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

	"github.com/awaistahir/what-to-wear/internal/config"
	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/awaistahir/what-to-wear/internal/jobs"
	"github.com/awaistahir/what-to-wear/internal/logger"
	"github.com/awaistahir/what-to-wear/internal/notify"
	"github.com/awaistahir/what-to-wear/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dbPath  string

	cfg *config.Config
	log *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "what-to-wear",
		Short: "What to Wear - pick a daily outfit and text it to you",
		Long: `What to Wear picks an outfit from your wardrobe every scheduled day,
avoiding recently worn tops and combinations you said no to, and texts it
to you. A periodic summary emails how often each item was worn.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.whattowear/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path (default is $HOME/.whattowear/whattowear.db)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(pairCmd())
	rootCmd.AddCommand(pickCmd())
	rootCmd.AddCommand(summaryCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.Path = dbPath
	}

	log, err = logger.New(cfg.Log.Mode, cfg.Log.Level)
	return err
}

func openStore(ctx context.Context) (store.Backend, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func retryPolicy() notify.Policy {
	return notify.Policy{Attempts: cfg.Notify.Attempts, Delay: cfg.Notify.Delay}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Println("✓ Store ready")
			if cfg.Store.Driver == config.DriverSQLite {
				fmt.Printf("Database: %s\n", cfg.Store.Path)
			}
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Add yourself: what-to-wear user add --phone +15550001111 --days weekdays")
			fmt.Println("  2. Add clothes:  what-to-wear item add --user <id> --category top --description \"Black Tee\"")
			fmt.Println("  3. Pick:         what-to-wear pick --dry-run")
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(userAddCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var phone, email, days string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := parseDays(days)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			u := &engine.User{Phone: phone, Email: email, Days: schedule, Enabled: true}
			if err := st.SaveUser(cmd.Context(), u); err != nil {
				return err
			}

			fmt.Printf("✓ Added user %s\n", u.ID)
			fmt.Printf("  Phone: %s\n", u.Phone)
			fmt.Printf("  Days:  %s\n", formatDays(u.Days))
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in E.164 format (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address for summaries")
	cmd.Flags().StringVar(&days, "days", "all", "Scheduled days: all, weekdays, weekends or mon,tue,...")
	cmd.MarkFlagRequired("phone")

	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			users, err := st.Users(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No users registered")
				return nil
			}

			fmt.Printf("%-36s %-16s %-28s %-28s %8s\n", "ID", "PHONE", "EMAIL", "DAYS", "ENABLED")
			fmt.Println(strings.Repeat("-", 120))
			for _, u := range users {
				enabled := "Yes"
				if !u.Enabled {
					enabled = "No"
				}
				fmt.Printf("%-36s %-16s %-28s %-28s %8s\n", u.ID, u.Phone, u.Email, formatDays(u.Days), enabled)
			}
			return nil
		},
	}
}

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage wardrobe items",
	}
	cmd.AddCommand(itemAddCmd())
	cmd.AddCommand(itemListCmd())
	cmd.AddCommand(itemDisableCmd())
	return cmd
}

func itemAddCmd() *cobra.Command {
	var userID, category, description string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a wardrobe item",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, ok := engine.ParseCategory(category)
			if !ok {
				return fmt.Errorf("unknown category %q (use top, bottom or shoe)", category)
			}

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			it := &engine.Item{UserID: userID, Category: cat, Description: description, Enabled: true}
			if err := st.SaveItem(cmd.Context(), it); err != nil {
				return err
			}

			fmt.Printf("✓ Added %s: %s\n", cat, description)
			fmt.Printf("  ID: %s\n", it.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user ID (required)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "top, bottom or shoe (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description used in messages (required)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("description")

	return cmd
}

func itemListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's wardrobe",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Printf("%-8s %-36s %-30s %8s\n", "CATEGORY", "ID", "DESCRIPTION", "ENABLED")
			fmt.Println(strings.Repeat("-", 85))
			for _, cat := range engine.Categories {
				items, err := st.Items(cmd.Context(), userID, cat, true)
				if err != nil {
					return err
				}
				for _, it := range items {
					enabled := "Yes"
					if !it.Enabled {
						enabled = "No"
					}
					fmt.Printf("%-8s %-36s %-30s %8s\n", cat, it.ID, it.Description, enabled)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user ID (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func itemDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <item-id>",
		Short: "Stop picking an item (history keeps it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetItemEnabled(cmd.Context(), args[0], false); err != nil {
				return fmt.Errorf("disabling %s: %w", args[0], err)
			}
			fmt.Printf("✓ Disabled %s\n", args[0])
			return nil
		},
	}
}

func pairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Manage unallowed pairs",
	}
	cmd.AddCommand(pairAddCmd())
	return cmd
}

func pairAddCmd() *cobra.Command {
	var userID, c1, id1, c2, id2 string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Never pick two items together",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat1, ok := engine.ParseCategory(c1)
			if !ok {
				return fmt.Errorf("unknown category %q", c1)
			}
			cat2, ok := engine.ParseCategory(c2)
			if !ok {
				return fmt.Errorf("unknown category %q", c2)
			}

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			p := engine.UnallowedPair{UserID: userID, Category1: cat1, ID1: id1, Category2: cat2, ID2: id2}
			if err := st.AddUnallowedPair(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Printf("✓ %s %s will not be picked with %s %s\n", cat1, id1, cat2, id2)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user ID (required)")
	cmd.Flags().StringVar(&c1, "c1", "top", "Category of the first item")
	cmd.Flags().StringVar(&id1, "id1", "", "ID of the first item (required)")
	cmd.Flags().StringVar(&c2, "c2", "bottom", "Category of the second item")
	cmd.Flags().StringVar(&id2, "id2", "", "ID of the second item (required)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("id1")
	cmd.MarkFlagRequired("id2")

	return cmd
}

func pickCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Pick and text today's outfit to every scheduled user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			job := &jobs.DailyJob{
				Store: st,
				Log:   log.With("job", "pick"),
				Selector: engine.SelectOptions{
					MaxAttempts:     cfg.Selector.MaxAttempts,
					Budget:          cfg.Selector.Budget,
					ExhaustiveLimit: cfg.Selector.ExhaustiveLimit,
				},
				Retry:       retryPolicy(),
				Concurrency: cfg.Jobs.Concurrency,
				DryRun:      dryRun,
			}

			if !dryRun {
				sms, err := notify.NewTwilioClient(notify.TwilioConfig{
					AccountSID: cfg.Twilio.AccountSID,
					AuthToken:  cfg.Twilio.AuthToken,
					From:       cfg.Twilio.From,
					BaseURL:    cfg.Twilio.BaseURL,
					Timeout:    cfg.Twilio.Timeout,
				})
				if err != nil {
					return err
				}
				job.SMS = sms
			}

			report, err := job.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Processed %d users, notified %d, skipped %d\n",
				report.Processed, report.Notified, len(report.Skipped))
			return printJSON(report)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Pick without saving or sending")

	return cmd
}

func summaryCmd() *cobra.Command {
	var printOnly bool
	var userID string
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Email every user how often each item was worn",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			job := &jobs.SummaryJob{
				Store:       st,
				Log:         log.With("job", "summary"),
				Retry:       retryPolicy(),
				Window:      cfg.Summary.Window,
				Subject:     cfg.Summary.Subject,
				Concurrency: cfg.Jobs.Concurrency,
			}
			if window > 0 {
				job.Window = window
			}

			if userID != "" {
				s, err := job.Summarize(ctx, userID)
				if err != nil {
					return err
				}
				return engine.RenderText(os.Stdout, s)
			}

			if printOnly {
				job.Concurrency = 1
				job.OnSummary = func(u *engine.User, s *engine.UsageSummary) {
					fmt.Printf("== %s (%s)\n", u.ID, u.Phone)
					engine.RenderText(os.Stdout, s)
					fmt.Println()
				}
			} else {
				mailer, err := notify.NewSendGridClient(notify.SendGridConfig{
					APIKey:    cfg.SendGrid.APIKey,
					FromEmail: cfg.SendGrid.FromEmail,
					FromName:  cfg.SendGrid.FromName,
					BaseURL:   cfg.SendGrid.BaseURL,
					Timeout:   cfg.SendGrid.Timeout,
				})
				if err != nil {
					return err
				}
				job.Mail = mailer
			}

			report, err := job.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Processed %d users, emailed %d, skipped %d\n",
				report.Processed, report.Notified, len(report.Skipped))
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "Print reports instead of emailing them")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Print the report for a single user")
	cmd.Flags().DurationVar(&window, "window", 0, "Override summary.window (e.g. 720h)")

	return cmd
}
