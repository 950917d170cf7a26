package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/app"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	"github.com/hackgods/clinic-slot-scheduling/internal/metrics"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
)

// env is the connected service for one command invocation.
type env struct {
	cfg   config.Config
	infra *app.Infra
	svc   *scheduling.Service
	log   *zap.Logger
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New("warn", cfg.Env)
	if err != nil {
		return nil, err
	}
	infra, err := app.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:   cfg,
		infra: infra,
		svc:   app.NewService(cfg, infra, metrics.NewSchedulingMetrics(nil), log),
		log:   log,
	}, nil
}

func (e *env) close() {
	e.infra.Close()
	_ = e.log.Sync()
}

// run connects, runs fn and closes everything within the timeout.
func run(timeout time.Duration, fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.close()
	return fn(ctx, e)
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "rulectl",
		Short:        "Inspect and edit clinic scheduling rules",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(listCmd(), addCmd(), deleteCmd(), translateCmd(), evalCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(30*time.Second, func(ctx context.Context, e *env) error {
				entries, err := e.svc.ListRules(ctx)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Println("no rules")
					return nil
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "INDEX\tRULE\tSOURCE TEXT")
				for _, entry := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", entry.Index, entry.Rule.String(), entry.Raw)
				}
				return tw.Flush()
			})
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <json>",
		Short:   "Append a rule given as {\"condition\": {...}, \"action\": {...}}",
		Example: `rulectl add '{"condition":{"patient_type":"new"},"action":{"duration":45}}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r rules.Rule
			if err := json.Unmarshal([]byte(args[0]), &r); err != nil {
				return fmt.Errorf("invalid rule JSON: %w", err)
			}
			return run(30*time.Second, func(ctx context.Context, e *env) error {
				entry, err := e.svc.AddRule(ctx, r)
				if err != nil {
					return err
				}
				fmt.Printf("added rule %d: %s\n", entry.Index, entry.Rule.String())
				return nil
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Remove the rule at index; later rules shift down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			return run(30*time.Second, func(ctx context.Context, e *env) error {
				if err := e.svc.DeleteRule(ctx, index); err != nil {
					return err
				}
				fmt.Printf("deleted rule %d\n", index)
				return nil
			})
		},
	}
}

func translateCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Turn an English instruction into a rule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return run(2*time.Minute, func(ctx context.Context, e *env) error {
				if save {
					entry, err := e.svc.AddRuleFromText(ctx, text)
					if err != nil {
						return err
					}
					fmt.Printf("added rule %d: %s\n", entry.Index, entry.Rule.String())
					return nil
				}

				if e.infra.Gemini == nil {
					return errors.New("GEMINI_API_KEY is not configured")
				}
				t := rules.NewLLMTranslator(e.infra.Gemini, e.cfg.TranslateMaxRetries, e.cfg.TranslateBackoff, e.log)
				r, err := t.Translate(ctx, text)
				if err != nil {
					return err
				}
				return printJSON(r)
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "append the translated rule to the store")
	return cmd
}

func evalCmd() *cobra.Command {
	var (
		p    patient.Profile
		date string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Show the slots a patient would be offered under the current rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(30*time.Second, func(ctx context.Context, e *env) error {
				offer, err := e.svc.ListAvailableSlots(ctx, scheduling.SlotQuery{Profile: p, Date: date})
				if err != nil {
					return err
				}
				return printJSON(offer)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.FirstName, "first-name", "", "patient first name")
	f.StringVar(&p.LastName, "last-name", "", "patient last name")
	f.StringVar(&p.DateOfBirth, "dob", "", "date of birth, YYYY-MM-DD")
	f.BoolVar(&p.IsNew, "new", false, "treat the patient as new")
	f.StringVar(&p.Email, "email", "", "patient email")
	f.StringVar(&p.InsuranceCompany, "insurance", "", "insurance company")
	f.StringVar(&date, "date", "", "only offer slots on this date")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("dob")
	return cmd
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
