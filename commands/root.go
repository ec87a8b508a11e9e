package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mabroukmoatez/formly-saas-sub017/board"
	"github.com/mabroukmoatez/formly-saas-sub017/client"
	"github.com/mabroukmoatez/formly-saas-sub017/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// session is the state shared by the subcommands of one invocation.
type session struct {
	cfg    config.Client
	logger *log.Logger
	client *client.Client
	ctrl   *board.Controller
}

func newRootCmd() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:   "boardctl",
		Short: "Quality task board client",
		Long: `boardctl talks to the quality task board API.
Run 'boardctl board' for the interactive board, or use the subcommands to
script columns and tasks from the shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("api", "", "Board API base URL (overrides BOARD_API_URL)")
	flags.Duration("timeout", 0, "Request timeout (overrides BOARD_API_TIMEOUT)")
	flags.Bool("debug", false, "Enable debug logging")

	root.AddCommand(newBoardCmd(s))
	root.AddCommand(newCategoriesCmd(s))
	root.AddCommand(newListCmd(s))
	root.AddCommand(newAddCmd(s))
	root.AddCommand(newStatusCmd(s))
	root.AddCommand(newReorderCmd(s))
	root.AddCommand(newMoveCmd(s))
	root.AddCommand(newDuplicateCmd(s))
	root.AddCommand(newDeleteCmd(s))
	root.AddCommand(newWatchCmd(s))
	root.AddCommand(newVersionCmd())
	return root
}

func (s *session) init(cmd *cobra.Command) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.BaseURL, _ = flags.GetString("api")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}

	logger := log.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(log.WarnLevel)
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	logger.WithFields(log.Fields{"api": cfg.BaseURL, "timeout": cfg.Timeout}).Debug("client configured")

	s.cfg = cfg
	s.logger = logger
	s.client = client.New(cfg.BaseURL, cfg.Timeout)
	s.ctrl = board.NewController(s.client, &cliNotifier{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr(), logger: logger})
	return nil
}

// load fetches the board so controller operations can resolve columns.
func (s *session) load(ctx context.Context) error {
	if err := s.ctrl.Refresh(ctx); err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	return nil
}

// reportedError marks an error the notifier already printed.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err: err}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command and prints errors that were not already shown.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	var rep reportedError
	if err != nil && !errors.As(err, &rep) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skips loading the client configuration.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "boardctl %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
