package board

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/client"
)

// Notifier surfaces the outcome of a mutation to the user.
type Notifier interface {
	Error(msg string)
	Success(msg string)
}

// LogNotifier writes notifications to a logrus logger.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) logger() *log.Logger {
	if n.Logger == nil {
		return log.StandardLogger()
	}
	return n.Logger
}

func (n LogNotifier) Error(msg string)   { n.logger().Error(msg) }
func (n LogNotifier) Success(msg string) { n.logger().Info(msg) }

type discardNotifier struct{}

func (discardNotifier) Error(string)   {}
func (discardNotifier) Success(string) {}

// describe prefers the server-provided message over the wrapped error text.
func describe(action string, err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return action + ": " + apiErr.Message
	}
	return action + ": " + err.Error()
}
