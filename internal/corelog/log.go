// Package corelog provides a simple leveled logger used by every subsystem
// in the store. Time/date are omitted by default since most deployments run
// under a supervisor (systemd, docker) that timestamps stdout/stderr for us.
//
// Uses the systemd syslog-prefix convention:
// https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package corelog

import (
	"fmt"
	"io"
	"log"
	"os"
)

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
	CritPrefix  string = "<2>[CRITICAL] "
)

var (
	debugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	infoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	warnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	errLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)
	critLog  *log.Logger = log.New(CritWriter, CritPrefix, log.Llongfile)

	debugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	infoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	warnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	errTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
	critTimeLog  *log.Logger = log.New(CritWriter, CritPrefix, log.LstdFlags|log.Llongfile)
)

// SetLogDate switches every subsequent log line to include a timestamp.
func SetLogDate(withDate bool) {
	logDateTime = withDate
}

func pick(noDate, withDate *log.Logger) *log.Logger {
	if logDateTime {
		return withDate
	}
	return noDate
}

func Debug(v ...interface{})            { pick(debugLog, debugTimeLog).Output(2, fmt.Sprintln(v...)) }
func Debugf(f string, v ...interface{}) { pick(debugLog, debugTimeLog).Output(2, fmt.Sprintf(f, v...)) }
func Info(v ...interface{})             { pick(infoLog, infoTimeLog).Output(2, fmt.Sprintln(v...)) }
func Infof(f string, v ...interface{})  { pick(infoLog, infoTimeLog).Output(2, fmt.Sprintf(f, v...)) }
func Print(v ...interface{})            { Info(v...) }
func Printf(f string, v ...interface{}) { Infof(f, v...) }
func Warn(v ...interface{})             { pick(warnLog, warnTimeLog).Output(2, fmt.Sprintln(v...)) }
func Warnf(f string, v ...interface{})  { pick(warnLog, warnTimeLog).Output(2, fmt.Sprintf(f, v...)) }
func Error(v ...interface{})            { pick(errLog, errTimeLog).Output(2, fmt.Sprintln(v...)) }
func Errorf(f string, v ...interface{}) { pick(errLog, errTimeLog).Output(2, fmt.Sprintf(f, v...)) }

func Fatal(v ...interface{}) {
	pick(critLog, critTimeLog).Output(2, fmt.Sprintln(v...))
	os.Exit(1)
}

func Fatalf(f string, v ...interface{}) {
	pick(critLog, critTimeLog).Output(2, fmt.Sprintf(f, v...))
	os.Exit(1)
}
