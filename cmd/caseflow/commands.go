package main

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"caseflow/pkg/compliance"
	"caseflow/pkg/config"
	"caseflow/pkg/eventlog"
	"caseflow/pkg/metrics"
	"caseflow/pkg/proto"
	"caseflow/pkg/supervisor"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the encrypted secrets file for API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptForPassword()
			if err != nil {
				return err
			}

			secrets := map[string]string{}
			scanner := bufio.NewScanner(os.Stdin)
			for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
				fmt.Printf("Enter %s (press Enter to skip): ", name)
				if !scanner.Scan() {
					break
				}
				if v := strings.TrimSpace(scanner.Text()); v != "" {
					secrets[name] = v
				}
			}

			if err := config.EncryptSecretsFile(".", password, secrets); err != nil {
				return fmt.Errorf("failed to encrypt secrets: %w", err)
			}
			fmt.Printf("Secrets saved to %s/secrets.json.enc.\n", config.ProjectConfigDir)
			fmt.Println("Set CASEFLOW_PASSWORD in your environment to unlock them at startup.")
			return nil
		},
	}
}

func promptForPassword() (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		fmt.Print("Enter a password for the secrets file: ")
		p1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Print("Confirm password: ")
		p2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if bytes.Equal(p1, p2) {
			return string(p1), nil
		}
		fmt.Println("Passwords do not match, try again.")
	}
	return "", fmt.Errorf("passwords did not match after 3 attempts")
}

func seedCmd() *cobra.Command {
	var bidsCase string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo procurement dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Seed(); err != nil {
				return err
			}
			if bidsCase != "" {
				if err := st.SeedBidsForCase(bidsCase); err != nil {
					return err
				}
			}
			fmt.Println("Seeded demo suppliers, contracts, spend history, and benchmarks.")
			return nil
		},
	}
	cmd.Flags().StringVar(&bidsCase, "bids-for", "", "also attach demo bids to this case")
	return cmd
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{Use: "case", Short: "Manage procurement cases"}
	c.AddCommand(caseNewCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	return c
}

func caseNewCmd() *cobra.Command {
	var spec supervisor.CaseSpec
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a case at DTP-01 (Strategy)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			cs, err := a.sup.CreateCase(spec)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s at %s.\n", cs.CaseID, cs.Stage.Display())
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.CaseID, "id", "", "case id (generated when empty)")
	cmd.Flags().StringVar(&spec.CategoryID, "category", "", "category id, e.g. CAT-IT-HW")
	cmd.Flags().StringVar(&spec.SupplierID, "supplier", "", "supplier id")
	cmd.Flags().StringVar(&spec.ContractID, "contract", "", "contract id")
	cmd.Flags().Float64Var(&spec.EstimatedValue, "value", 0, "estimated value in USD")
	cmd.Flags().BoolVar(&spec.Strategic, "strategic", false, "strategically important category")
	return cmd
}

func caseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			ids, err := st.ListCaseIDs()
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Case", "Stage", "Status", "Category", "Value", "Updated"})
			for _, id := range ids {
				cs, err := st.GetCase(id)
				if err != nil {
					return err
				}
				tw.AppendRow(table.Row{
					cs.CaseID, cs.Stage.Display(), cs.Status, cs.CategoryID,
					fmt.Sprintf("$%.0f", cs.EstimatedValue),
					cs.UpdatedAt.Format("2006-01-02 15:04"),
				})
			}
			tw.Render()
			return nil
		},
	}
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show case state and recent activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			cs, err := st.GetCase(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s  %s  %s\n", cs.CaseID, cs.Stage.Display(), cs.Status)
			if cs.CategoryID != "" {
				fmt.Printf("Category: %s", cs.CategoryID)
				if cs.SupplierID != "" {
					fmt.Printf("  Supplier: %s", cs.SupplierID)
				}
				if cs.ContractID != "" {
					fmt.Printf("  Contract: %s", cs.ContractID)
				}
				fmt.Println()
			}
			if cs.EstimatedValue > 0 {
				fmt.Printf("Estimated value: $%.0f", cs.EstimatedValue)
				if cs.Strategic {
					fmt.Print("  (strategic)")
				}
				fmt.Println()
			}
			if cs.WaitingForHuman {
				fmt.Println("Waiting for your approval: reply with 'caseflow decide'.")
			}

			if len(cs.ActivityLog) > 0 {
				fmt.Println()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Intent", "Agent", "Tokens", "Cost", "Message"})
				start := 0
				if len(cs.ActivityLog) > 10 {
					start = len(cs.ActivityLog) - 10
				}
				for _, e := range cs.ActivityLog[start:] {
					tw.AppendRow(table.Row{
						e.Timestamp.Format("01-02 15:04"), e.Intent.Category, e.AgentName,
						e.TokensUsed, fmt.Sprintf("$%.4f", e.CostUSD), truncate(e.Message, 48),
					})
				}
				tw.Render()
			}

			if cs.LatestOutput != nil {
				fmt.Println()
				renderPack(cs.LatestOutput)
			}
			return nil
		},
	}
}

func submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <case-id> <message...>",
		Short: "Send one message to a case",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			out, err := a.sup.Execute(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			renderOutcome(out)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <case-id>",
		Short: "Interactive session with a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			caseID := args[0]
			if _, err := a.store.GetCase(caseID); err != nil {
				return err
			}

			fmt.Printf("Chatting with %s. Type 'exit' to leave.\n", caseID)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				msg := strings.TrimSpace(scanner.Text())
				if msg == "" {
					continue
				}
				if msg == "exit" || msg == "quit" {
					break
				}
				out, err := a.sup.Execute(cmd.Context(), caseID, msg)
				if err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
					continue
				}
				renderOutcome(out)
			}
			return scanner.Err()
		},
	}
}

func decideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decide <case-id> approve|reject [note...]",
		Short: "Resolve a pending stage gate",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var approve bool
			switch args[1] {
			case "approve":
				approve = true
			case "reject":
			default:
				return fmt.Errorf("decision must be approve or reject, got %q", args[1])
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			out, err := a.sup.Decide(args[0], approve, strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			fmt.Println(out.Reply)
			return nil
		},
	}
}

func packsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "packs <case-id>",
		Short: "List artifact packs produced for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			packs, err := st.PacksForCase(args[0])
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Pack", "Agent", "Artifacts", "Tasks", "Tokens", "Cost", "Created"})
			for _, p := range packs {
				tw.AppendRow(table.Row{
					shortID(p.PackID), p.AgentName, len(p.Artifacts), len(p.TasksExecuted),
					p.Metadata.TotalTokens, fmt.Sprintf("$%.4f", p.Metadata.EstimatedCost),
					p.CreatedAt.Format("01-02 15:04"),
				})
			}
			tw.Render()
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <case-id>",
		Short: "Show the audit trail for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			files, err := eventlog.ListLogFiles(cfg.EventLogDir)
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"When", "Kind", "Stage", "Agent", "Tokens", "Detail"})
			for _, f := range files {
				events, err := eventlog.CaseEvents(f, args[0])
				if err != nil {
					return err
				}
				for _, ev := range events {
					tw.AppendRow(table.Row{
						ev.Timestamp.Format("01-02 15:04:05"), ev.Kind, ev.Stage,
						ev.Agent, ev.Tokens, truncate(ev.Detail, 60),
					})
				}
			}
			tw.Render()
			return nil
		},
	}
}

func usageCmd() *cobra.Command {
	var promURL string
	cmd := &cobra.Command{
		Use:   "usage <case-id>",
		Short: "Query token and cost usage for a case from Prometheus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := metrics.NewQueryService(promURL)
			if err != nil {
				return err
			}
			usage, err := qs.CaseUsage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Agent", "Prompt", "Completion", "Total", "Cost"})
			for agent, u := range usage.Agents {
				tw.AppendRow(table.Row{
					agent, u.PromptTokens, u.CompletionTokens, u.TotalTokens(),
					fmt.Sprintf("$%.4f", u.CostUSD),
				})
			}
			tw.Render()
			tokens, cost := usage.Totals()
			fmt.Printf("Total: %d tokens, $%.4f\n", tokens, cost)
			return nil
		},
	}
	cmd.Flags().StringVar(&promURL, "prometheus", "http://localhost:9090", "Prometheus base URL")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the /metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr := cfg.MetricsAddr
			if addr == "" {
				addr = ":9464"
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			fmt.Printf("Serving metrics on %s/metrics\n", addr)
			return srv.ListenAndServe()
		},
	}
}

func renderOutcome(out *supervisor.Outcome) {
	fmt.Println(out.Reply)

	if out.Compliance.Verdict == compliance.NonCompliant {
		fmt.Println()
		fmt.Println("Compliance check failed:")
		for _, v := range out.Compliance.Violations {
			fmt.Printf("  - %s: output does not address %q (%s)\n", v.Field, v.Expected, v.Type)
		}
	}
	for _, c := range out.Contradictions {
		fmt.Printf("Contradiction on %s: previously %q, now %q\n", c.Field, c.OldValue, c.NewValue)
	}

	if out.Pack != nil && len(out.Pack.Artifacts) > 0 && out.Pack.AgentName != proto.AgentSupervisor {
		fmt.Println()
		renderPack(out.Pack)
	}
	if out.Case != nil {
		fmt.Printf("\n%s is at %s (%s).\n", out.Case.CaseID, out.Case.Stage.Display(), out.Case.Status)
	}
}

func renderPack(p *proto.ArtifactPack) {
	fmt.Printf("Artifact pack %s from %s (%d tokens, $%.4f):\n",
		shortID(p.PackID), p.AgentName, p.Metadata.TotalTokens, p.Metadata.EstimatedCost)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Artifact", "Type", "Verification", "Claims", "Sources"})
	for _, art := range p.Artifacts {
		tw.AppendRow(table.Row{
			truncate(art.Title, 40), art.Type, art.VerificationStatus,
			len(art.Claims), len(art.GroundedIn),
		})
	}
	tw.Render()

	for _, r := range p.Risks {
		fmt.Printf("Risk (%s): %s\n", r.Severity, r.Description)
	}
	for _, na := range p.NextActions {
		fmt.Printf("Next: %s\n", na.Label)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
