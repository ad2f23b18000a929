package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadform/internal/model"
)

var formsPath string

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Inspect form definitions",
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured forms",
	RunE: func(cmd *cobra.Command, _ []string) error {
		forms, err := model.LoadForms(resolveFormsPath())
		if err != nil {
			return err
		}
		return printForms(cmd.OutOrStdout(), forms)
	},
}

var formsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check form definitions for structural errors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := resolveFormsPath()
		forms, err := model.LoadForms(path)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d forms OK\n", path, len(forms))
		return err
	},
}

func init() {
	formsCmd.PersistentFlags().StringVar(&formsPath, "path", "", "forms file (default from config)")
	formsCmd.AddCommand(formsListCmd, formsValidateCmd)
	rootCmd.AddCommand(formsCmd)
}

func resolveFormsPath() string {
	if formsPath != "" {
		return formsPath
	}
	return cfg.Forms.Path
}

func printForms(w io.Writer, forms map[string]model.Form) error {
	ids := make([]string, 0, len(forms))
	for id := range forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTEPS\tREDIRECT")
	for _, id := range ids {
		f := forms[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.ID, f.Kind, len(f.Steps), f.RedirectPath)
	}
	return tw.Flush()
}
