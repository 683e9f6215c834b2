// Harkenctl runs the triage engine from the command line for rule tuning
// and offline checks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linnemanlabs/harken/internal/triage"
	"github.com/linnemanlabs/harken/internal/triage/rules"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Settings resolve flag first, then
// HARKEN_* environment variables.
func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "harkenctl",
		Short: "Classify parent feedback and check triage rule tables",
		Long: `harkenctl runs the same deterministic triage engine as the harken server.
Use it to see how a message would be classified and routed, and to validate
a tuned rule table before deploying it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("rules", "", "triage rule table YAML (default: built-in rules, env HARKEN_RULES)")
	_ = v.BindPFlag("rules", root.PersistentFlags().Lookup("rules"))
	v.SetEnvPrefix("HARKEN")
	v.AutomaticEnv()

	root.AddCommand(classifyCmd(v))
	root.AddCommand(rulesCmd(v))
	root.AddCommand(departmentsCmd(v))
	return root
}

// loadRules returns the rule table selected by --rules / HARKEN_RULES.
func loadRules(v *viper.Viper) (*rules.RuleSet, error) {
	rs, err := rules.LoadOrDefault(v.GetString("rules"))
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return rs, nil
}

func loadEngine(v *viper.Viper) (*triage.Engine, error) {
	rs, err := loadRules(v)
	if err != nil {
		return nil, err
	}
	return triage.NewEngine(rs)
}
