package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/habitquest/duel-engine/internal/domain/persona"
)

// PersonaCmd returns the persona command.
func PersonaCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "persona <answers.yaml>",
		Short: "Classify questionnaire answers into an archetype",
		Long: `Run the rule-based persona classifier over a YAML answers file.

Use "-" to read the answers from stdin.

Example answers file:
  motivation: competition
  top_motivators: [learning, health]
  miss_response: quiet_reset`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := readAnswers(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			result := persona.Classify(answers)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printPersona(out, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func readAnswers(stdin io.Reader, path string) (persona.Answers, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return persona.Answers{}, fmt.Errorf("read answers: %w", err)
	}

	var answers persona.Answers
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return persona.Answers{}, fmt.Errorf("parse answers: %w", err)
	}
	return answers, nil
}

func printPersona(out io.Writer, r persona.Result) {
	fmt.Fprintf(out, "Archetype  %s\n", color.New(color.FgMagenta, color.Bold).Sprint(r.Archetype))
	if r.MatchedOn != "" {
		fmt.Fprintf(out, "Matched    %s\n", r.MatchedOn)
	} else {
		fmt.Fprintf(out, "Matched    %s\n", color.New(color.FgHiBlack).Sprint("(fallback)"))
	}
	fmt.Fprintf(out, "Tone       %s\n", r.EngagementTone)
	fmt.Fprintf(out, "Lever      %s\n", r.MotivationLever)
	fmt.Fprintf(out, "Contact    %d/week\n", r.ContactFrequency)
	fmt.Fprintf(out, "Duration   %d days\n", r.DefaultChallengeDays)
	fmt.Fprintf(out, "Strengths  %s\n", strings.Join(r.Strengths, ", "))
	fmt.Fprintf(out, "Watch for  %s\n", strings.Join(r.ChurnRisks, ", "))
	fmt.Fprintf(out, "Try        %s\n", strings.Join(r.RecommendedHabits, ", "))
}
