package commands

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// cliNotifier prints controller notifications: successes on stdout, failures
// on stderr.
type cliNotifier struct {
	out    io.Writer
	err    io.Writer
	logger *log.Logger
}

func (n *cliNotifier) Success(msg string) {
	n.logger.Debug(msg)
	fmt.Fprintln(n.out, "✓", msg)
}

func (n *cliNotifier) Error(msg string) {
	n.logger.Debug(msg)
	fmt.Fprintln(n.err, "✗", msg)
}
