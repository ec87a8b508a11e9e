package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

func newWatchCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print board changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			err := s.client.Watch(cmd.Context(), func(ev domain.BoardEvent) {
				fmt.Fprintf(out, "%s %-18s %s #%s", time.Unix(0, ev.Time).Format("15:04:05"), ev.Type, ev.EntityType, ev.EntityID)
				if ev.CategoryID != 0 {
					fmt.Fprintf(out, " (column #%d)", ev.CategoryID)
				}
				fmt.Fprintln(out)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
