// Package logging centralizes the op/go-logging setup: SetupLogging
// installs the process-wide backend once, and each package (keystore,
// security, server) obtains its own named logger with
// logging.MustGetLogger at package level; no component takes a logger
// as a constructor argument.
package logging

import (
	"log/syslog"
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{module} %{level:.4s}%{color:reset} %{message}`,
)

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{module} %{level:.6s} %{message}`,
)

// SetupLogging builds a *logging.Logger for module, backed by syslog
// when useSyslog is true and the local syslog daemon is reachable,
// falling back to a colorized stderr backend otherwise.
func SetupLogging(module string, level logging.Level, useSyslog bool) *logging.Logger {
	log := logging.MustGetLogger(module)

	var backend logging.Backend
	if useSyslog {
		syslogBackend, err := logging.NewSyslogBackendPriority(module, syslog.LOG_NOTICE)
		if err == nil {
			backend = syslogBackend
			logging.SetFormatter(syslogFormat)
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, module, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(level, module)
	logging.SetBackend(leveled)
	return log
}

// Priority maps a go-logging level to the matching syslog priority, kept
// for components that want to annotate a raw syslog.Writer directly
// (e.g. the security reporter's audit trail).
func Priority(level logging.Level) syslog.Priority {
	switch level {
	case logging.CRITICAL:
		return syslog.LOG_CRIT
	case logging.ERROR:
		return syslog.LOG_ERR
	case logging.WARNING:
		return syslog.LOG_WARNING
	case logging.NOTICE:
		return syslog.LOG_NOTICE
	case logging.INFO:
		return syslog.LOG_INFO
	default:
		return syslog.LOG_DEBUG
	}
}
