package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"certline/internal/app"
	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/logging"
	"certline/internal/migrate"
	"certline/internal/repo"
	"certline/internal/schedule"
	"certline/internal/server"
	"certline/internal/standards"
	"certline/internal/validator"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Certline CLI",
	Long: `Certline records BS 7671 electrical test results and inspection schedules.
Core concepts:
- Workspace: a directory holding certline.yml and .certline/certline.db.
- Test: one certificate in progress (eic, minor_works, eicr or pat) with its circuits.
- Readings: raw values per circuit, validated against the standards table on entry.
- Standards: min/max limits keyed by measurement type, circuit type and rating; the most specific match wins.
- Inspection schedule: the fixed checklist for a certificate type. Items marked fail or limitation need notes before they save.
- Event log: every change, view with 'cl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CERTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides certline.yml)")
	rootCmd.PersistentFlags().String("log-format", "", "log format text|json (overrides certline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(standardsCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(circuitCmd())
	rootCmd.AddCommand(measureCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func setupLogging() error {
	level, format := viper.GetString("log-level"), viper.GetString("log-format")
	if level == "" || format == "" {
		// a broken certline.yml is reported by the command itself
		if cfg, err := config.LoadOptional(viper.GetString("workspace")); err == nil {
			if level == "" {
				level = cfg.Logging.Level
			}
			if format == "" {
				format = cfg.Logging.Format
			}
		}
	}
	_, err := logging.Setup(level, format)
	return err
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create certline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			ws, err := app.Open(cmd.Context(), workspace, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			defer ws.Close()
			n, err := ws.Engine.Repo.CountStandards(cmd.Context())
			if err != nil {
				return err
			}
			version, err := migrate.Version(ws.Engine.DB)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"config": path, "database": db.Path(workspace), "schema_version": version, "standards": n})
			}
			fmt.Printf("Initialised workspace: %s (schema v%d, %d standards)\n", path, version, n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing certline.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "certline.yml sets the standards catalog, logging and webhooks. Missing keys use defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate certline.yml and the standards catalog it names",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err == nil {
				_, _, err = app.Catalog(workspace, cfg)
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func standardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standards",
		Short: "Measurement standards table",
		Long:  "Limits per measurement type, optionally narrowed by circuit type and rating. Lookups try exact, rating only, type only, then generic.",
	}
	cmd.AddCommand(standardsListCmd())
	cmd.AddCommand(standardsLookupCmd())
	cmd.AddCommand(standardsImportCmd())
	return cmd
}

func standardsListCmd() *cobra.Command {
	var mt string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored standards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListStandards(ctx, domain.MeasurementType(mt))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Type", "Circuit Type", "Rating", "Min", "Max", "Reference"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.MeasurementType, valueOr(s.CircuitType, "*"), valueOr(s.CircuitRating, "*"), bound(s.MinAcceptable), bound(s.MaxAcceptable), s.StandardReference})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mt, "type", "", "measurement type filter")
	return cmd
}

func standardsLookupCmd() *cobra.Command {
	var circuitType, rating string
	cmd := &cobra.Command{
		Use:   "lookup <measurement-type>",
		Short: "Show which standard applies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.LookupStandard(ctx, domain.MeasurementType(args[0]), circuitType, rating)
				if err != nil {
					return err
				}
				if s == nil {
					if viper.GetBool("json") {
						return printJSON(map[string]any{"found": false})
					}
					fmt.Println("no standard applies")
					return nil
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&circuitType, "circuit-type", "", "circuit type, e.g. ring_final")
	cmd.Flags().StringVar(&rating, "rating", "", "circuit rating, e.g. 32A")
	return cmd
}

func standardsImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the standards table from a JSONC catalog",
		Long:  "Without --file the catalog named in certline.yml is used, or the built-in BS 7671 limits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws app.Workspace) error {
				var cat *standards.Catalog
				source := file
				var err error
				if file != "" {
					cat, err = standards.ReadFile(file)
				} else {
					cat, source, err = app.Catalog(ws.Dir, ws.Config)
				}
				if err != nil {
					return err
				}
				n, err := ws.Engine.ImportStandards(ctx, cat, source, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"imported": n, "source": source})
				}
				fmt.Printf("Imported %d standards from %s\n", n, source)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog file (JSONC)")
	return cmd
}

func validateCmd() *cobra.Command {
	var circuitType, rating string
	cmd := &cobra.Command{
		Use:   "validate <measurement-type> <value>",
		Short: "Check one reading without storing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok := validator.ParseReading(args[1])
			if !ok {
				return fmt.Errorf("value %q is not a positive number", args[1])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ValidateReading(ctx, engine.ValidateOptions{
					Type:          domain.MeasurementType(args[0]),
					Value:         value,
					CircuitType:   circuitType,
					CircuitRating: rating,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s\n", strings.ToUpper(string(res.Status)), res.Message)
				if res.StandardReference != "" {
					fmt.Println("ref:", res.StandardReference)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&circuitType, "circuit-type", "", "circuit type")
	cmd.Flags().StringVar(&rating, "rating", "", "circuit rating")
	return cmd
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Manage electrical tests",
		Long:  "A test is one certificate in progress. Completing it requires every inspection item to be saved and locks the record.",
	}
	cmd.AddCommand(testCreateCmd())
	cmd.AddCommand(testListCmd())
	cmd.AddCommand(testShowCmd())
	cmd.AddCommand(testStatusCmd())
	cmd.AddCommand(testCompleteCmd())
	return cmd
}

func testCreateCmd() *cobra.Command {
	var opts engine.TestCreateOptions
	var certType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new test",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.CertificateType = domain.CertificateType(certType)
				opts.ActorID = viper.GetString("actor-id")
				t, err := e.CreateTest(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Created %s test %s\n", t.CertificateType, t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "test id (generated when empty)")
	cmd.Flags().StringVar(&certType, "type", "", "certificate type: eic, minor_works, eicr, pat")
	cmd.Flags().StringVar(&opts.Site, "site", "", "site address or description")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func testListCmd() *cobra.Command {
	var f repo.TestFilters
	var certType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.CertificateType = domain.CertificateType(certType)
				tests, err := e.ListTests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tests)
				}
				tw := newTable(table.Row{"ID", "Type", "Site", "Status", "Updated"})
				for _, t := range tests {
					tw.AppendRow(table.Row{t.ID, t.CertificateType, t.Site, t.Status, t.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter: in_progress, complete")
	cmd.Flags().StringVar(&certType, "type", "", "certificate type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max tests")
	return cmd
}

func testShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <test-id>",
		Short: "Show a test with its circuits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTest(ctx, args[0])
				if err != nil {
					return err
				}
				circuits, err := e.ListCircuits(ctx, t.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"test": t, "circuits": circuits})
				}
				fmt.Printf("%s  %s  %s  %s\n", t.ID, t.CertificateType, t.Status, t.Site)
				printCircuits(circuits)
				return nil
			})
		},
	}
}

func testStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <test-id>",
		Short: "Certificate eligibility and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.CertificateStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("Test %s (%s): %s\n", sum.TestID, sum.CertificateType, sum.Status)
				fmt.Printf("Inspection: %d/%d (%d%%)\n", sum.Progress.Completed, sum.Progress.Total, sum.Progress.Percent)
				statuses := make([]string, 0, len(sum.Measurements))
				for st, n := range sum.Measurements {
					statuses = append(statuses, fmt.Sprintf("%s=%d", st, n))
				}
				sort.Strings(statuses)
				fmt.Printf("Measurements: %s\n", valueOr(strings.Join(statuses, " "), "none"))
				if sum.Eligible {
					fmt.Println("Certificate: eligible")
				} else {
					fmt.Printf("Certificate: blocked by %s\n", valueOr(strings.Join(sum.Blocking, ", "), "an empty schedule"))
				}
				return nil
			})
		},
	}
}

func testCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <test-id>",
		Short: "Complete a test once its schedule is eligible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CompleteTest(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Test %s complete\n", t.ID)
				return nil
			})
		},
	}
}

func circuitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Manage circuits on a test",
	}
	cmd.AddCommand(circuitAddCmd())
	cmd.AddCommand(circuitListCmd())
	return cmd
}

func circuitAddCmd() *cobra.Command {
	var opts engine.CircuitCreateOptions
	cmd := &cobra.Command{
		Use:   "add <test-id>",
		Short: "Add a circuit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.TestID = args[0]
				opts.ActorID = viper.GetString("actor-id")
				c, err := e.AddCircuit(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("Added circuit %s (%s)\n", c.Ref, c.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "circuit reference on the board")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.CircuitType, "circuit-type", "", "circuit type, e.g. ring_final, radial, lighting")
	cmd.Flags().StringVar(&opts.OvercurrentDeviceType, "device-type", "", "overcurrent device type, e.g. B")
	cmd.Flags().StringVar(&opts.OvercurrentDeviceRating, "rating", "", "overcurrent device rating, e.g. 32A")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func circuitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <test-id>",
		Short: "List circuits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				circuits, err := e.ListCircuits(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(circuits)
				}
				printCircuits(circuits)
				return nil
			})
		},
	}
}

func measureCmd() *cobra.Command {
	var readings map[string]string
	cmd := &cobra.Command{
		Use:   "measure <test-id> <circuit>",
		Short: "Record readings for a circuit",
		Long:  "Readings are given as type=value, e.g. --reading continuity=0.35 --reading insulation=250. Blank or non-positive values are skipped; a later reading of the same type replaces the earlier one.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(readings) == 0 {
				return errors.New("at least one --reading is required")
			}
			raw := make(map[domain.MeasurementType]string, len(readings))
			for k, v := range readings {
				raw[domain.MeasurementType(k)] = v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RecordReadings(ctx, args[0], args[1], raw, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printMeasurements(res.Measurements)
				for _, s := range res.Skipped {
					fmt.Printf("skipped %s %q: %s\n", s.Type, s.Raw, s.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVar(&readings, "reading", nil, "reading as type=value (repeatable)")
	cmd.AddCommand(measureListCmd())
	return cmd
}

func measureListCmd() *cobra.Command {
	var f repo.MeasurementFilters
	var status string
	cmd := &cobra.Command{
		Use:   "list <test-id>",
		Short: "List recorded measurements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.TestID = args[0]
				f.Status = domain.ValidationStatus(status)
				items, err := e.ListMeasurements(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printMeasurements(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CircuitID, "circuit", "", "circuit id or ref")
	cmd.Flags().StringVar(&status, "status", "", "status filter: pass, warning, fail, unknown")
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspection schedule",
		Long:  "The checklist for the test's certificate type. Results are pass, fail, n/a or limitation; fail and limitation need notes to save.",
	}
	cmd.AddCommand(inspectStartCmd())
	cmd.AddCommand(inspectShowCmd())
	cmd.AddCommand(inspectSetCmd())
	cmd.AddCommand(inspectSaveCmd())
	return cmd
}

func inspectStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <test-id>",
		Short: "Initialise the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.StartInspection(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printChecklist(view)
			})
		},
	}
}

func inspectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <test-id>",
		Short: "Show the schedule with progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.GetChecklist(ctx, args[0])
				if err != nil {
					return err
				}
				return printChecklist(view)
			})
		},
	}
}

func inspectSetCmd() *cobra.Command {
	var result, notes string
	cmd := &cobra.Command{
		Use:   "set <test-id> <item-code>",
		Short: "Set and save one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := schedule.ItemUpdate{ItemCode: args[1]}
			if cmd.Flags().Changed("result") {
				r := domain.InspectionResult(result)
				u.Result = &r
			}
			if cmd.Flags().Changed("notes") {
				u.Notes = &notes
			}
			if u.Result == nil && u.Notes == nil {
				return errors.New("--result or --notes is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.SetItem(ctx, args[0], u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(it)
				}
				fmt.Printf("Saved %s: %s\n", it.ItemCode, it.Result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "pass, fail, n/a or limitation")
	cmd.Flags().StringVar(&notes, "notes", "", "inspector notes")
	return cmd
}

// batchItem is one entry of an inspect save file.
type batchItem struct {
	Code   string  `yaml:"code"`
	Result *string `yaml:"result"`
	Notes  *string `yaml:"notes"`
}

func inspectSaveCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save <test-id>",
		Short: "Save a batch of items",
		Long: `Reads a YAML list of {code, result, notes} from --file. Without --file every
item with a result is saved again. Each item is gated on its own and failures are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var updates []schedule.ItemUpdate
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var items []batchItem
				if err := yaml.Unmarshal(data, &items); err != nil {
					return fmt.Errorf("invalid batch file: %w", err)
				}
				for _, it := range items {
					u := schedule.ItemUpdate{ItemCode: it.Code, Notes: it.Notes}
					if it.Result != nil {
						r := domain.InspectionResult(*it.Result)
						u.Result = &r
					}
					updates = append(updates, u)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.SaveItems(ctx, args[0], updates, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Saved %d item(s), %d rejected, %d unset\n", len(report.Saved), len(report.Failures), len(report.Skipped))
				for _, f := range report.Failures {
					fmt.Printf("  %s: %s\n", f.ItemCode, f.Message)
				}
				if !report.OK() {
					return fmt.Errorf("%d item(s) not saved", len(report.Failures))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML batch file")
	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspection schedule templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <certificate-type>",
		Short: "Show the schedule template for a certificate type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := schedule.TemplateFor(domain.CertificateType(args[0]))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(tpl)
			}
			printItems(tpl.Items)
			return nil
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every change to tests, circuits, readings, inspection items and standards.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "TS", "Type", "Test", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.TestID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.TestID, "test", "", "test id filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws app.Workspace) error {
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Logger: slog.Default(), Context: ctx})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				slog.Info("starting api server", "addr", addr, "base_path", basePath, "webhooks", len(ws.Config.Webhooks))
				fmt.Printf("Serving Certline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, app.Workspace) error) error {
	workspace := viper.GetString("workspace")
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	ws, err := app.Open(ctx, workspace, viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws app.Workspace) error {
		return fn(ctx, ws.Engine)
	})
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printCircuits(circuits []domain.Circuit) {
	tw := newTable(table.Row{"Ref", "ID", "Type", "Device", "Rating", "Description"})
	for _, c := range circuits {
		tw.AppendRow(table.Row{c.Ref, c.ID, c.CircuitType, c.OvercurrentDeviceType, c.OvercurrentDeviceRating, c.Description})
	}
	tw.Render()
}

func printMeasurements(items []domain.Measurement) {
	tw := newTable(table.Row{"Circuit", "Type", "Value", "Status", "Message", "Reference"})
	for _, m := range items {
		tw.AppendRow(table.Row{m.CircuitID, m.Type, m.Value, m.Result.Status, m.Result.Message, m.Result.StandardReference})
	}
	tw.Render()
}

func printItems(items []domain.InspectionItem) {
	tw := newTable(table.Row{"Code", "Category", "Item", "Result", "Notes"})
	for _, it := range items {
		tw.AppendRow(table.Row{it.ItemCode, it.Category, it.Item, valueOr(string(it.Result), "-"), it.Notes})
	}
	tw.Render()
}

func printChecklist(view engine.ChecklistView) error {
	if viper.GetBool("json") {
		return printJSON(view)
	}
	printItems(view.Items)
	fmt.Printf("Progress: %d/%d (%d%%)\n", view.Progress.Completed, view.Progress.Total, view.Progress.Percent)
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func bound(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
