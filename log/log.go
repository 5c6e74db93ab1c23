// Package log is a thin structured-logging wrapper around
// github.com/astaxie/beego/logs, the teacher's actual logging backend. It
// keeps the printf-style, one-call-per-event shape the teacher uses for
// every notable chain-state transition (block attached/detached, reorg
// started/finished, duplicate rejected).
package log

import (
	"sync"

	"github.com/astaxie/beego/logs"
)

var (
	initOnce sync.Once
	backend  *logs.BeeLogger
)

func instance() *logs.BeeLogger {
	initOnce.Do(func() {
		backend = logs.NewLogger()
		_ = backend.SetLogger(logs.AdapterConsole)
	})
	return backend
}

func Debug(format string, v ...interface{}) { instance().Debug(format, v...) }
func Info(format string, v ...interface{})  { instance().Info(format, v...) }
func Warn(format string, v ...interface{})  { instance().Warn(format, v...) }
func Error(format string, v ...interface{}) { instance().Error(format, v...) }
