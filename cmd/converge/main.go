package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eniac111/converge/internal/inventory"
	"github.com/eniac111/converge/internal/logger"
	"github.com/eniac111/converge/internal/playbook"
	"github.com/eniac111/converge/internal/runner"
	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var parseErr *types.ParseError
		if errors.As(err, &parseErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "converge",
		Short:         "converge remote hosts to a declared state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		inventoryPath string
		playbookPath  string
		forks         int
		check         bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "apply a playbook to the hosts in an inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := inventory.Load(inventoryPath)
			if err != nil {
				return err
			}
			pb, err := playbook.Load(playbookPath)
			if err != nil {
				return err
			}

			r := runner.New(&transport.SSHDialer{})
			r.Forks = forks
			r.CheckMode = check

			report, runErr := r.Run(cmd.Context(), inv, pb)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", "inventory.yaml", "path to the inventory file")
	cmd.Flags().StringVarP(&playbookPath, "playbook", "p", "site.yaml", "path to the playbook file")
	cmd.Flags().IntVar(&forks, "forks", 0, "maximum hosts converging at once")
	cmd.Flags().BoolVar(&check, "check", false, "report what would change without changing anything")
	return cmd
}

func printReport(w io.Writer, report *types.RunReport) {
	fmt.Fprintf(w, "run %s\n", report.RunID)
	for _, h := range report.Hosts {
		fmt.Fprintf(w, "\n%s: %s\n", h.Host.Name, h.Outcome)
		for _, res := range h.Results {
			status := "ok"
			if res.Failed {
				status = "failed"
			} else if res.Changed {
				status = "changed"
			}
			fmt.Fprintf(w, "  [%s] %s (%s): %s\n", status, res.TaskName, res.Module, res.Msg)
		}
		if h.Outcome == types.OutcomeUnreachable {
			fmt.Fprintf(w, "  %s\n", h.Msg)
		}
	}

	ok, failed, unreachable, changed := 0, 0, 0, 0
	for _, h := range report.Hosts {
		switch h.Outcome {
		case types.OutcomeSuccess:
			ok++
		case types.OutcomeFailed:
			failed++
		case types.OutcomeUnreachable:
			unreachable++
		}
		changed += h.Changed()
	}
	fmt.Fprintf(w, "\nrecap: ok=%d changed=%d failed=%d unreachable=%d\n", ok, changed, failed, unreachable)
}
