package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabroukmoatez/formly-saas-sub017/board"
)

func newReorderCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder ACTIVE OVER",
		Short: "Drop task ACTIVE onto task OVER",
		Long: `Drop task ACTIVE onto the slot of task OVER. Within one column the
column is renumbered; when OVER sits in another column ACTIVE moves there
and is appended at the end.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := parseID(args[0])
			if err != nil {
				return err
			}
			over, err := parseID(args[1])
			if err != nil {
				return err
			}
			return s.drop(cmd, active, board.OverTask(over))
		},
	}
}

func newMoveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "move ID CATEGORY",
		Short: "Move a task to the end of another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			categoryID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return s.drop(cmd, id, board.OverColumn(categoryID))
		},
	}
}

func (s *session) drop(cmd *cobra.Command, id int64, target board.Target) error {
	if err := s.load(cmd.Context()); err != nil {
		return err
	}
	if _, ok := s.ctrl.Task(id); !ok {
		return fmt.Errorf("task #%d not found", id)
	}
	outcome, err := s.ctrl.Drop(cmd.Context(), id, target)
	if err != nil {
		return reported(err)
	}
	s.logger.WithField("outcome", outcome.String()).Debug("drop applied")
	if outcome == board.OutcomeNoop {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Task #%d: %s\n", id, outcome)
	}
	return nil
}
