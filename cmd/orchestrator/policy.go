package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the business policy file",
	}
	cmd.AddCommand(policyCheckCmd())
	return cmd
}

func policyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [policy-file]",
		Short: "Validate a policy file and print the effective settings",
		Long: `Load a policy file on top of the built-in defaults, validate it and print
the settings the orchestrators would run with. Without an argument the
defaults are checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			policy, err := config.LoadPolicy(path)
			if err != nil {
				return err
			}
			if err := policy.Validate(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "token max age\t%s\n", policy.TokenMaxAge)
			fmt.Fprintf(w, "external timeout\t%s\n", policy.Timeouts.External)
			fmt.Fprintf(w, "failover threshold\t%s\n", policy.Timeouts.FailoverSafetyThreshold)
			fmt.Fprintf(w, "request budget\t%s\n", policy.Timeouts.DefaultRequestBudget)
			fmt.Fprintf(w, "default token provider\t%s\n", policy.DefaultTokenProvider)
			fmt.Fprintf(w, "void limit (days)\t%d\n", policy.VoidTimeLimit.DefaultDays)
			fmt.Fprintf(w, "denied bins\t%d\n", len(policy.BinDenylist))
			fmt.Fprintf(w, "topics\t%s, %s, %s\n", policy.Topics.Transactions, policy.Topics.CompensatingVoid, policy.Topics.Alerts)
			for _, name := range sortedKeys(policy.DirectIntegration) {
				fmt.Fprintf(w, "direct integration\t%s\n", name)
			}
			for _, name := range sortedKeys(policy.TokenProviders) {
				fmt.Fprintf(w, "token provider\t%s\n", name)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "policy OK")
			return nil
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
