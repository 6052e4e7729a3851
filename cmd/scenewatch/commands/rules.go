package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scenewatch/scenewatch/internal/engine"
	"github.com/scenewatch/scenewatch/internal/rules"
	"github.com/scenewatch/scenewatch/internal/snapshot"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the configured scene rules",
	Long: `List the compiled scene rules in their declared order. The first
matching rule wins when several patterns match the same title.`,
	Example: `  # List rules in table format (default)
  scenewatch rules

  # List rules in JSON format
  scenewatch rules --format json`,
	RunE: runRules,
}

var rulesTestCmd = &cobra.Command{
	Use:   "test TITLE",
	Short: "Dry-run a window title against the rule set",
	Long: `Resolve a window title against the configured rules without touching
the endpoint. Prints the scene the title would select on the given display.`,
	Example: `  # Which scene would a Fleet Management window on display 0 select?
  scenewatch rules test --display 0 "Fleet Management Dashboard"`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesTest,
}

var (
	rulesFormat string
	testDisplay int
)

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesTestCmd)

	rulesCmd.PersistentFlags().StringVarP(&rulesFormat, "format", "f", "table", "output format (table or json)")
	rulesTestCmd.Flags().IntVarP(&testDisplay, "display", "d", 0, "display index the window is on")
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ruleSet, err := rules.Compile(cfg.Rules)
	if err != nil {
		return fmt.Errorf("failed to compile rules: %w", err)
	}

	switch rulesFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg.Rules)
	case "table":
		return printRulesTable(ruleSet)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", rulesFormat)
	}
}

func printRulesTable(ruleSet rules.Set) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "DISPLAY\tPATTERN\tSCENE")
	fmt.Fprintln(w, "-------\t-------\t-----")
	for _, r := range ruleSet.Rules() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.Display, r.Pattern.String(), r.Scene)
	}
	return nil
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ruleSet, err := rules.Compile(cfg.Rules)
	if err != nil {
		return fmt.Errorf("failed to compile rules: %w", err)
	}

	title := args[0]
	decision := engine.Decide([]snapshot.Window{{
		Display: testDisplay,
		Title:   title,
	}}, ruleSet)

	if !decision.Matched {
		fmt.Printf("No rule matches %q on display %d\n", title, testDisplay)
		return nil
	}
	fmt.Printf("Display %d, %q -> scene %q\n", testDisplay, title, decision.Scene)
	return nil
}
