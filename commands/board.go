package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
	"github.com/mabroukmoatez/formly-saas-sub017/tui"
)

func newBoardCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the interactive board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			opts := tui.Options{API: s.client}
			if live, _ := cmd.Flags().GetBool("live"); live {
				opts.Events = s.stream(ctx)
			}
			return tui.Run(ctx, opts)
		},
	}
	cmd.Flags().Bool("live", true, "Refresh the board when it changes elsewhere")
	return cmd
}

// stream forwards server events until ctx ends; the channel closes when the
// stream stops.
func (s *session) stream(ctx context.Context) <-chan domain.BoardEvent {
	ch := make(chan domain.BoardEvent, 16)
	go func() {
		defer close(ch)
		err := s.client.Watch(ctx, func(ev domain.BoardEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Debug("board event stream stopped")
		}
	}()
	return ch
}
