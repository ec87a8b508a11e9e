package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCategoriesCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cols", "columns"},
		Short:   "List and manage board columns",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.load(cmd.Context()); err != nil {
				return err
			}
			cats := s.ctrl.Categories()
			out := cmd.OutOrStdout()
			if len(cats) == 0 {
				fmt.Fprintln(out, "No columns yet. Use 'boardctl categories add NAME' to create one.")
				return nil
			}
			fmt.Fprintf(out, "%-6s %-30s %-9s %s\n", "ID", "NAME", "COLOR", "TASKS")
			fmt.Fprintln(out, strings.Repeat("-", 54))
			for _, c := range cats {
				fmt.Fprintf(out, "%-6d %-30s %-9s %d\n", c.ID, clip(c.Name, 30), c.Color, len(s.ctrl.CategoryTasks(c.ID)))
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a column",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			color, _ := cmd.Flags().GetString("color")
			_, err := s.ctrl.CreateCategory(cmd.Context(), strings.Join(args, " "), color)
			return reported(err)
		},
	}
	add.Flags().String("color", "", "Column color, e.g. #3b82f6")

	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a column",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, err = s.ctrl.RenameCategory(cmd.Context(), id, strings.Join(args[1:], " "))
			return reported(err)
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a column and all of its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return reported(s.ctrl.DeleteCategory(cmd.Context(), id))
		},
	}

	cmd.AddCommand(add, rename, del)
	return cmd
}

// clip shortens s to n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
