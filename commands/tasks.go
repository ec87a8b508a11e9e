package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mabroukmoatez/formly-saas-sub017/board"
	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

func newListCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list", "tasks"},
		Short:   "List tasks by column",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f board.Filter
			f.CategoryID, _ = cmd.Flags().GetInt64("category")
			f.Query, _ = cmd.Flags().GetString("search")
			if err := s.load(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			cats := s.ctrl.VisibleCategories(f)
			if len(cats) == 0 {
				fmt.Fprintln(out, "No columns found.")
				return nil
			}
			for i, c := range cats {
				tasks := s.ctrl.Visible(c.ID, f)
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s (#%d, %d)\n", c.Name, c.ID, len(tasks))
				fmt.Fprintln(out, strings.Repeat("-", 72))
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					fmt.Fprintf(out, "%-6d %-12s %-7s %-34s %s\n", t.ID, t.Status, t.Priority, clip(t.Title, 34), due)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64P("category", "c", 0, "Only show this column")
	cmd.Flags().StringP("search", "s", "", "Filter by title or description")
	return cmd
}

func newAddCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a task to a column",
		Long: `Add a task at the end of a column.

Examples:
  boardctl add --category 1 "Audit fournisseurs"
  boardctl add -c 2 -p urgent --due 2024-06-30 "Mettre à jour la procédure"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			categoryID, _ := flags.GetInt64("category")
			priority, _ := flags.GetString("priority")
			description, _ := flags.GetString("description")
			due, _ := flags.GetString("due")

			if categoryID <= 0 {
				return fmt.Errorf("--category is required")
			}
			t := domain.Task{
				Title:       strings.Join(args, " "),
				Description: description,
				CategoryID:  categoryID,
			}
			if priority != "" {
				t.Priority = domain.Priority(priority)
				if !t.Priority.Valid() {
					return fmt.Errorf("invalid priority %q: use low, medium, high or urgent", priority)
				}
			}
			if due != "" {
				if _, err := time.Parse("2006-01-02", due); err != nil {
					return fmt.Errorf("invalid due date %q: use YYYY-MM-DD", due)
				}
				t.DueDate = &due
			}

			created, err := s.ctrl.CreateTask(cmd.Context(), t)
			if err != nil {
				return reported(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d\n", created.ID)
			return nil
		},
	}
	cmd.Flags().Int64P("category", "c", 0, "Column id")
	cmd.Flags().StringP("priority", "p", "", "Priority: low, medium, high or urgent")
	cmd.Flags().StringP("description", "d", "", "Task description")
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD)")
	return cmd
}

func newStatusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Set the status of a task (todo, in_progress, done)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := domain.Status(args[1])
			if !status.Valid() {
				return fmt.Errorf("invalid status %q: use todo, in_progress or done", args[1])
			}
			if err := s.load(cmd.Context()); err != nil {
				return err
			}
			_, err = s.ctrl.UpdateTask(cmd.Context(), id, domain.TaskPatch{Status: &status})
			return reported(err)
		},
	}
}

func newDuplicateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate ID",
		Short: "Copy a task into the same column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := s.load(cmd.Context()); err != nil {
				return err
			}
			created, err := s.ctrl.DuplicateTask(cmd.Context(), id)
			if err != nil {
				return reported(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d\n", created.ID)
			return nil
		},
	}
}

func newDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := s.load(cmd.Context()); err != nil {
				return err
			}
			return reported(s.ctrl.DeleteTask(cmd.Context(), id))
		},
	}
}
