// Command txndemo exercises the versioned map and each transaction
// discipline against small, self-contained scenarios. It exists to give
// a human a way to poke at the library from a terminal; none of its
// output format is a contract.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "txndemo",
		Short: "Runs small scenarios against the versioned map and transaction disciplines",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	newLogger := func() *zap.Logger {
		cfg := zap.NewDevelopmentConfig()
		if !verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}
		log, err := cfg.Build()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return log
	}

	root.AddCommand(
		snapshotCmd(newLogger),
		twoplCmd(newLogger),
		occValidateCmd(newLogger),
		occPolicyCmd(newLogger),
		snapshotUpdateCmd(newLogger),
		nestedCmd(newLogger),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func snapshotCmd(newLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Shows a reader snapshot staying frozen across later writer mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotIsolation(newLogger())
		},
	}
}

func twoplCmd(newLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "twopl",
		Short: "Shows two transactions contending for a write lock on the same row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run2PLWriteConflict(newLogger())
		},
	}
}

func occValidateCmd(newLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "occ-validate",
		Short: "Shows an OCC transaction losing validation to a concurrent committer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOCCValidationFailure(newLogger())
		},
	}
}

func occPolicyCmd(newLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "occ-policy",
		Short: "Compares EAGER and LAZY version-bump timing under OCC",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOCCEagerVsLazy(newLogger())
		},
	}
}

func snapshotUpdateCmd(newLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot-update",
		Short: "Shows a 2PL write on a SNAPSHOT table redirecting its lock to the replacement row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run2PLSnapshotTableUpdate(newLogger())
		},
	}
}

func nestedCmd(newLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "nested",
		Short: "Shows a nested transaction's abort leaving its parent untouched, then a sibling committing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNestedRollback(newLogger())
		},
	}
}
