package logger

import (
	"errors"

	"github.com/rollbar/rollbar-go"
)

// Rollbar logs locally and reports warnings and errors to Rollbar.
type Rollbar struct {
	*Std
}

var _ Logger = (*Rollbar)(nil)

type RollbarConfig struct {
	Token       string
	Environment string
	Host        string
	CodeVersion string
}

func NewRollbar(std *Std, conf RollbarConfig) *Rollbar {
	rollbar.SetToken(conf.Token)
	rollbar.SetEnvironment(conf.Environment)
	rollbar.SetServerHost(conf.Host)
	rollbar.SetCodeVersion(conf.CodeVersion)
	rollbar.SetEnabled(conf.Token != "")
	return &Rollbar{Std: std}
}

func (l *Rollbar) Warn(msg string, kv ...any) {
	l.Std.Warn(msg, kv...)
	rollbar.Warning(msg, fields(kv))
}

// Error reports the first error value among kv, if any, so Rollbar groups
// by cause rather than by message.
func (l *Rollbar) Error(msg string, kv ...any) {
	l.Std.Error(msg, kv...)
	extras := fields(kv)
	for _, v := range kv {
		if err, ok := v.(error); ok {
			rollbar.Error(err, extras)
			return
		}
	}
	rollbar.Error(errors.New(msg), extras)
}

// Close flushes pending reports.
func (l *Rollbar) Close() {
	rollbar.Close()
}
