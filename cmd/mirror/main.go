package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mirror-go/internal/app"
	"mirror-go/internal/config"
	"mirror-go/internal/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from the default location.
func loadConfig() (*config.Config, error) {
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

// newApp reads the config and creates a MirrorApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Pull", "Push").
func newApp(cmd *cobra.Command, operation string) (*app.MirrorApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewMirrorApp(cmd.Context(), cfg, operation, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp reports a Close failure unless the command already failed.
func closeApp(a *app.MirrorApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid resource id %q", s)
	}
	return id, nil
}

// promptPassphrase reads a passphrase without echo. When stdin is not a
// terminal the first line of input is used.
func promptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var stdin = bufio.NewReader(os.Stdin)

var rootCmd = &cobra.Command{
	Use:          "mirror",
	Short:        "Local mirror of a remote CMS",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])
		if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
			cfg.Remote.BaseURL = baseURL
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Host ID:        %s\n", cfg.HostID)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Remote:         %s %s\n", cfg.Remote.Type, cfg.Remote.BaseURL)
		fmt.Printf("Resource types: %v\n", cfg.ResourceTypes)
		fmt.Printf("Taxonomies:     %v\n", cfg.Taxonomies)
		fmt.Printf("Plugins:        %v\n", cfg.Plugins)
		fmt.Printf("Vaults:         %d\n", len(cfg.Vaults))
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nProblems:\n%v\n", err)
		}
		return nil
	},
}

// pull command
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull remote resources into the mirror",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		typ, _ := cmd.Flags().GetString("type")
		overwrite, _ := cmd.Flags().GetBool("overwrite-dirty")

		a, err := newApp(cmd, "Pull")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		report, err := a.Pull(cmd.Context(), typ, overwrite)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}

		fmt.Println(report)
		for _, e := range report.Errors {
			fmt.Printf("  error: %v\n", e)
		}
		for _, w := range report.Warnings {
			fmt.Printf("  warning: resource %d: %v\n", w.ResourceID, w.Err)
		}
		return nil
	},
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push local edits to the remote server",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		typ, _ := cmd.Flags().GetString("type")
		skip, _ := cmd.Flags().GetBool("skip-conflict-check")

		a, err := newApp(cmd, "Push")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		report, err := a.Push(cmd.Context(), typ, skip)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		fmt.Println(report)
		for _, c := range report.Conflicts {
			fmt.Printf("  conflict: resource %d: remote modified %s, baseline %s\n",
				c.ResourceID,
				c.RemoteModified.Format(time.RFC3339),
				c.LocalBaselineModified.Format(time.RFC3339))
		}
		for _, f := range report.Failures {
			fmt.Printf("  failed: resource %d: %v\n", f.ResourceID, f.Err)
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mirror status per resource type",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Status")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		statuses, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%-15s %7s %7s %10s %8s\n", "TYPE", "TOTAL", "DIRTY", "LOCAL-ONLY", "DRIFTED")
		for _, s := range statuses {
			fmt.Printf("%-15s %7d %7d %10d %8d\n", s.Type, s.Total, s.Dirty, s.LocalOnly, s.Drifted)
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored resources",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var filter model.ResourceFilter
		filter.Type, _ = cmd.Flags().GetString("type")
		filter.DirtyOnly, _ = cmd.Flags().GetBool("dirty")
		filter.Search, _ = cmd.Flags().GetString("search")
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := model.ParseStatus(s)
			if err != nil {
				return err
			}
			filter.Status = st
		}

		a, err := newApp(cmd, "List")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		resources, err := a.List(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if len(resources) == 0 {
			fmt.Println("No resources.")
			return nil
		}

		for _, r := range resources {
			indicator := " "
			switch {
			case r.IsLocalOnly():
				indicator = "N"
			case r.Dirty:
				indicator = "M"
			}
			fmt.Printf("%s %8d  %-10s %-10s %s\n", indicator, r.ID, r.Type, r.Status, r.Title)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "Show")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		r, err := a.Show(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printResource(r)
	},
}

func printResource(r *model.Resource) error {
	out, err := json.MarshalIndent(map[string]any{
		"id":          r.ID,
		"type":        r.Type,
		"title":       r.Title,
		"slug":        r.Slug,
		"status":      r.Status,
		"content":     r.Content,
		"excerpt":     r.Excerpt,
		"meta":        r.Meta,
		"terms":       r.Terms,
		"plugin_data": r.PluginData,
		"modified_at": r.ModifiedAt,
		"dirty":       r.Dirty,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding resource: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// edit command
var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit fields of a resource",
	Long: `Edit fields of a resource. Fields are addressed as title, slug, status,
content, excerpt, meta.<key>, terms.<taxonomy> or plugin.<plugin>.<key>.
Values other than the core text fields are parsed as JSON when possible.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		fields, _ := cmd.Flags().GetStringArray("field")
		unset, _ := cmd.Flags().GetStringArray("unset")

		a, err := newApp(cmd, "Edit")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		r, err := a.Edit(cmd.Context(), id, fields, unset)
		if err != nil {
			return fmt.Errorf("edit failed: %w", err)
		}
		if r.Dirty {
			fmt.Printf("Resource %d modified\n", r.ID)
		} else {
			fmt.Printf("Resource %d matches its last synced state\n", r.ID)
		}
		return nil
	},
}

// create command
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a resource locally; it is sent on the next push",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		r := &model.Resource{}
		r.Type, _ = cmd.Flags().GetString("type")
		r.Title, _ = cmd.Flags().GetString("title")
		r.Content, _ = cmd.Flags().GetString("content")
		status, _ := cmd.Flags().GetString("status")
		r.Status = model.Status(status)

		a, err := newApp(cmd, "Create")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		created, err := a.Create(cmd.Context(), r)
		if err != nil {
			return fmt.Errorf("create failed: %w", err)
		}
		fmt.Printf("Created local resource %d\n", created.ID)
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a resource from the mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		fromRemote, _ := cmd.Flags().GetBool("remote")

		a, err := newApp(cmd, "Delete")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.Delete(cmd.Context(), id, fromRemote); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Printf("Deleted resource %d\n", id)
		return nil
	},
}

// discard command
var discardCmd = &cobra.Command{
	Use:   "discard ID",
	Short: "Discard local edits of a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "Discard")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		r, err := a.Discard(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("discard failed: %w", err)
		}
		if r == nil {
			fmt.Printf("Removed unsynced resource %d\n", id)
		} else {
			fmt.Printf("Restored resource %d\n", id)
		}
		return nil
	},
}

// diff command
var diffCmd = &cobra.Command{
	Use:   "diff ID",
	Short: "Show local edits of a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "Diff")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		diffs, err := a.Diff(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(diffs) == 0 {
			fmt.Println("No local changes.")
			return nil
		}
		for _, d := range diffs {
			fmt.Printf("%s\n  - %s\n  + %s\n", d.Path, jsonValue(d.Baseline), jsonValue(d.Current))
		}
		return nil
	},
}

func jsonValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history ID",
	Short: "View the change log of a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		entries, err := a.History(cmd.Context(), id, limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No changes recorded.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-20s %s -> %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.FieldPath, e.OldValue, e.NewValue)
		}
		return nil
	},
}

// terms command
var termsCmd = &cobra.Command{
	Use:   "terms TAXONOMY",
	Short: "List pulled term definitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Terms")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		terms, err := a.ListTerms(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, t := range terms {
			fmt.Printf("%6d  %-20s %s\n", t.ID, t.Slug, t.Name)
		}
		return nil
	},
}

// runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "Runs")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		runs, err := a.Runs(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-8s  %s  %-8s  %-8s  %s\n",
				run.ID,
				run.Operation,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				duration,
				run.Summary,
			)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage mirror database backups",
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore DEST",
	Short: "Download and decrypt the latest database backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var passphrase string
		if app.NeedsPassphrase(cfg) {
			passphrase, err = promptPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		version, err := app.RestoreBackup(cmd.Context(), cfg, args[0], passphrase)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored backup version %d to %s\n", version, args[0])
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage backup encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the backup key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !app.NeedsPassphrase(cfg) {
			fmt.Printf("Encryption type %q needs no keys.\n", cfg.Encryption.Type)
			return nil
		}

		passphrase, err := promptPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("base-url", "", "Base URL of the remote content API")
	configCmd.AddCommand(configListCmd)

	// sync
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().StringP("type", "t", "", "Only pull this resource type")
	pullCmd.Flags().Bool("overwrite-dirty", false, "Replace local edits with remote state")
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().StringP("type", "t", "", "Only push this resource type")
	pushCmd.Flags().Bool("skip-conflict-check", false, "Push without comparing remote modification times")

	// inspection
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("type", "t", "", "Filter by resource type")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().Bool("dirty", false, "Only show resources with local edits")
	listCmd.Flags().String("search", "", "Match title or slug")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	rootCmd.AddCommand(termsCmd)
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")

	// editing
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().StringArrayP("field", "f", nil, "Set a field (path=value), repeatable")
	editCmd.Flags().StringArray("unset", nil, "Remove a meta key, taxonomy or plugin entry, repeatable")
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringP("type", "t", "posts", "Resource type")
	createCmd.Flags().String("title", "", "Title")
	createCmd.Flags().String("content", "", "Content")
	createCmd.Flags().String("status", "draft", "Status")
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().Bool("remote", false, "Also delete the resource on the remote server")
	rootCmd.AddCommand(discardCmd)

	// backups
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysInitCmd)

	rootCmd.AddCommand(configCmd)
}
