package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linnemanlabs/harken/internal/triage"
	"github.com/linnemanlabs/harken/internal/triage/rules"
)

func rulesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect triage rule tables",
	}
	cmd.AddCommand(rulesCheckCmd(v))
	return cmd
}

func rulesCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate a rule table",
		Long: `Check parses and validates a rule table and builds an engine from it.
The path argument overrides --rules; with neither the built-in table is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				rs  *rules.RuleSet
				err error
			)
			if len(args) == 1 {
				rs, err = rules.Load(args[0])
			} else {
				rs, err = loadRules(v)
			}
			if err != nil {
				return err
			}
			engine, err := triage.NewEngine(rs)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "version\t%s\n", engine.Version())
			fmt.Fprintf(tw, "departments\t%d\n", len(rs.Departments))
			fmt.Fprintf(tw, "categories\t%d\n", len(rs.Categories))
			fmt.Fprintf(tw, "lexicon\t%d positive, %d negative\n", len(rs.Sentiment.Positive), len(rs.Sentiment.Negative))
			fmt.Fprintf(tw, "default department\t%s\n", engine.DefaultDepartment())
			fmt.Fprintln(tw, "ok")
			return tw.Flush()
		},
	}
}

func departmentsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "departments",
		Short: "List departments and the categories routed to them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := loadRules(v)
			if err != nil {
				return err
			}
			routed := make(map[string][]string)
			for _, c := range rs.Categories {
				routed[c.Department] = append(routed[c.Department], c.Name)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORIES\tDESCRIPTION")
			for _, d := range rs.Departments {
				cats := "-"
				if names := routed[d.Name]; len(names) > 0 {
					cats = strings.Join(names, ", ")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, cats, d.Description)
			}
			return tw.Flush()
		},
	}
}
