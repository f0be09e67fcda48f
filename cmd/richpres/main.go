package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"richpres/internal/app"
	"richpres/internal/config"
	"richpres/internal/encryption"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig reads the config file named by the defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// command identifies the CLI command being run (e.g. "simulate", "history").
func newApp(command, parameters string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, command, parameters)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal. RICHPRES_PASSPHRASE overrides the
// prompt for scripted use.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("RICHPRES_PASSPHRASE"); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "richpres",
	Short:        "Rich presence publication engine",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and trace keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		uri, _ := cmd.Flags().GetString("uri")
		if !strings.HasPrefix(strings.ToLower(uri), "sip:") {
			return fmt.Errorf("--uri must be a sip uri, got %q", uri)
		}

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		endpointID := uuid.New().String()
		cfg := config.NewConfig(uri, endpointID, defaults["base_dir"])

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if !enc.IsConfigured() {
			pass, err := readPassphrase("Passphrase for trace keys: ")
			if err != nil {
				return err
			}
			confirm, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if pass != confirm {
				return fmt.Errorf("passphrases do not match")
			}
			if err := enc.Setup(pass); err != nil {
				return fmt.Errorf("generating trace keys: %w", err)
			}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Account:     %s\n", uri)
		fmt.Printf("Endpoint ID: %s\n", endpointID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Account:     %s\n", cfg.Account.URI)
		fmt.Printf("Endpoint ID: %s\n", cfg.Account.EndpointID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		archiveType := cfg.Archive.Type
		if archiveType == "" {
			archiveType = "disabled"
		}
		fmt.Printf("Archive:     %s\n", archiveType)
		if cfg.Calendar.Path != "" {
			fmt.Printf("Calendar:    %s\n", cfg.Calendar.Path)
		}
		return nil
	},
}

// simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate SNAPSHOT",
	Short: "Run a session against a roaming-self snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		faultPath, _ := cmd.Flags().GetString("fault")
		ticks, _ := cmd.Flags().GetInt("ticks")
		status, _ := cmd.Flags().GetString("status")
		note, _ := cmd.Flags().GetString("note")

		snapshot, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		opts := app.SimulateOptions{Snapshot: snapshot, Ticks: ticks, Status: status, Note: note}
		if faultPath != "" {
			if opts.Fault, err = os.ReadFile(faultPath); err != nil {
				return fmt.Errorf("reading fault: %w", err)
			}
		}

		a, err := newApp("simulate", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Simulate(opts)
		if err != nil {
			return err
		}
		printExchanges(res.Exchanges)
		fmt.Printf("status: %s, publications: %d\n", res.Status, res.Publications)
		if len(res.Pending) > 0 {
			fmt.Printf("pending: %s\n", strings.Join(res.Pending, ", "))
		}
		return nil
	},
}

func printExchanges(exchanges []*app.Exchange) {
	for _, ex := range exchanges {
		status := "-"
		if ex.Response != nil {
			status = fmt.Sprintf("%d", ex.Response.Status)
		}
		fmt.Printf("#%d  %s  %s\n%s\n\n", ex.Seq, ex.Request.ContentType, status, ex.Request.Body)
	}
}

// access command
var accessCmd = &cobra.Command{
	Use:   "access URI",
	Short: "Show or change the access level of a user or domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshotPath, _ := cmd.Flags().GetString("snapshot")
		level, _ := cmd.Flags().GetString("set")

		snapshot, err := os.ReadFile(snapshotPath)
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}

		a, err := newApp("access", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if level != "" {
			sent, err := a.ChangeAccess(snapshot, args[0], level)
			if err != nil {
				return err
			}
			if len(sent) == 0 {
				fmt.Println("Access level unchanged.")
				return nil
			}
			printExchanges(sent)
			return nil
		}

		access, ok, err := a.ResolveAccess(snapshot, args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s: no access level\n", args[0])
			return nil
		}
		inherited := ""
		if access.Inherited {
			inherited = " (inherited)"
		}
		fmt.Printf("%s: %s%s\n", args[0], access.Level, inherited)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View journaled requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history", "")
		if err != nil {
			return err
		}
		defer a.Close()

		reqs, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			fmt.Println("No requests recorded.")
			return nil
		}

		for _, r := range reqs {
			outcome := "pending"
			duration := ""
			if !r.Pending() {
				outcome = fmt.Sprintf("%d %s", r.Status, r.FaultCode)
				duration = r.FinishedAt.Sub(r.SentAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-20s  %s  %-3d keys  %-40s  %s\n",
				r.ID,
				r.Kind,
				r.SentAt.Format("2006-01-02 15:04:05"),
				len(r.Keys),
				outcome,
				duration,
			)
		}
		return nil
	},
}

// contacts command
var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("contacts", "")
		if err != nil {
			return err
		}
		defer a.Close()

		contacts, err := a.Contacts()
		if err != nil {
			return err
		}
		if len(contacts) == 0 {
			fmt.Println("No contacts.")
			return nil
		}
		for _, c := range contacts {
			var flags string
			switch {
			case c.Blocked && c.PendingAdd:
				flags = "BP"
			case c.Blocked:
				flags = "B "
			case c.PendingAdd:
				flags = " P"
			default:
				flags = "  "
			}
			fmt.Printf("%s %s  %s\n", flags, c.URI, c.DisplayName)
		}
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Read archived wire traces",
}

var archiveListCmd = &cobra.Command{
	Use:   "list [PREFIX]",
	Short: "List archived traces",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}

		a, err := newApp("archive-list", prefix)
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.ArchiveList(prefix)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Decrypt and print an archived trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("archive-show", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if err := a.ArchiveShow(args[0], pass, os.Stdout); err != nil {
			return err
		}
		fmt.Println()
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the journal database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		st, err := app.MigrateDatabase(cfg)
		if err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Printf("Database at version %d\n", st.Version)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		st, err := app.DatabaseStatus(cfg)
		if err != nil {
			return err
		}
		state := "current"
		switch {
		case st.Dirty:
			state = "dirty"
		case st.Version < st.Latest:
			state = "behind"
		case st.Version > st.Latest:
			state = "ahead"
		}
		fmt.Printf("version %d of %d (%s)\n", st.Version, st.Latest, state)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("uri", "", "Account sip uri, e.g. sip:alice@contoso.com")
	configInitCmd.MarkFlagRequired("uri")

	// archive subcommands
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("fault", "", "Fault document answered to the first publish")
	simulateCmd.Flags().Int("ticks", 0, "Scheduler jobs to run after ingestion")
	simulateCmd.Flags().String("status", "", "Status to publish after ingestion")
	simulateCmd.Flags().String("note", "", "Note to publish with the status")
	rootCmd.AddCommand(accessCmd)
	accessCmd.Flags().String("snapshot", "", "Roaming-self snapshot holding the containers")
	accessCmd.Flags().String("set", "", "Move the principal to this level (blocked, personal, team, company, public or none)")
	accessCmd.MarkFlagRequired("snapshot")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of requests to show")
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(dbCmd)
}
