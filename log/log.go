// Package log provides file-backed loggers for the application. The TUI owns
// the terminal, so nothing is ever written to stdout or stderr here.
// Set ES_DEBUG=1 to enable the additional debug log.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

var (
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger

	logFile  *os.File
	enabled  bool
	initOnce bool
)

var logFileName = filepath.Join(os.TempDir(), "ec2switch.log")

// Initialize sets up the loggers. Logging is best-effort: if the log file
// cannot be opened, the loggers are wired to io.Discard so call sites never
// have to nil-check. When oneShot is true (non-TUI subcommands), warnings and
// errors also go to stderr since there is no UI to surface them.
func Initialize(oneShot bool) {
	if initOnce {
		return
	}
	initOnce = true

	var w io.Writer = io.Discard
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		w = f
		logFile = f
		enabled = true
	}

	warnW := w
	errW := w
	if oneShot {
		warnW = io.MultiWriter(w, os.Stderr)
		errW = io.MultiWriter(w, os.Stderr)
	}

	flags := log.Ldate | log.Ltime | log.Lshortfile
	InfoLog = log.New(w, "INFO: ", flags)
	WarningLog = log.New(warnW, "WARNING: ", flags)
	ErrorLog = log.New(errW, "ERROR: ", flags)

	initDebug()
}

// Close flushes and closes the log file.
func Close() {
	closeDebug()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Enabled reports whether log output is going to a file.
func Enabled() bool {
	return enabled
}

// FileName returns the path of the log file.
func FileName() string {
	return logFileName
}

// Every logger must work before Initialize so package-level init code and
// tests that skip Initialize don't panic.
func init() {
	discard := log.New(io.Discard, "", 0)
	InfoLog, WarningLog, ErrorLog = discard, discard, discard
	DebugLog = discard
}

// Debug logging, gated behind ES_DEBUG=1.

var (
	DebugEnabled bool
	DebugLog     *log.Logger
	debugLogFile *os.File
)

var debugLogFileName = filepath.Join(os.TempDir(), "ec2switch-debug.log")

func initDebug() {
	if os.Getenv("ES_DEBUG") != "1" {
		DebugLog = log.New(io.Discard, "", 0)
		return
	}

	DebugEnabled = true

	f, err := os.OpenFile(debugLogFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		ErrorLog.Printf("could not open debug log file: %s", err)
		DebugLog = log.New(io.Discard, "", 0)
		return
	}

	DebugLog = log.New(f, "DEBUG: ", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugLogFile = f
	DebugLog.Printf("debug mode enabled, log: %s", debugLogFileName)
}

func closeDebug() {
	if debugLogFile != nil {
		_ = debugLogFile.Close()
		debugLogFile = nil
		fmt.Println("wrote debug logs to " + debugLogFileName)
	}
}

// Debug logs a debug message if debug mode is enabled.
func Debug(format string, v ...interface{}) {
	if DebugEnabled && DebugLog != nil {
		DebugLog.Printf(format, v...)
	}
}
