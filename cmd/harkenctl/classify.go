package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linnemanlabs/harken/internal/triage"
)

func classifyCmd(v *viper.Viper) *cobra.Command {
	var (
		asJSON  bool
		channel string
	)
	cmd := &cobra.Command{
		Use:   "classify [message...]",
		Short: "Classify a feedback message",
		Long: `Classify prints the sentiment, category, priority and department the
engine assigns to a message. With no arguments the message is read from stdin.`,
		Example: `  harkenctl classify "The wifi is down in the library"
  echo "Thanks for the great bus service" | harkenctl classify --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				msg = string(b)
			}
			if strings.TrimSpace(msg) == "" {
				return errors.New("no message given")
			}

			engine, err := loadEngine(v)
			if err != nil {
				return err
			}
			cls, err := engine.Triage(triage.Submission{Channel: channel, Message: msg})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cls)
			}
			return printClassification(out, cls)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the classification as JSON")
	cmd.Flags().StringVar(&channel, "channel", triage.DefaultChannel, "submission channel")
	return cmd
}

func printClassification(w io.Writer, c triage.Classification) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "sentiment\t%s (score %d)\n", c.Sentiment, c.SentimentScore)
	fmt.Fprintf(tw, "category\t%s\n", c.Category)
	fmt.Fprintf(tw, "priority\t%s\n", c.Priority)
	fmt.Fprintf(tw, "urgent\t%t\n", c.Urgent)
	fmt.Fprintf(tw, "department\t%s\n", c.Department)
	fmt.Fprintf(tw, "status\t%s\n", c.Status)
	fmt.Fprintf(tw, "rules\t%s\n", c.RulesVersion)
	return tw.Flush()
}
