package logger

import (
	"fmt"
	"io"
	"sync/atomic"

	echolog "github.com/labstack/gommon/log"
)

// EchoAdapter routes echo's internal logging into a module logger so
// framework messages share the application's format and sinks.
//
//	e := echo.New()
//	e.Logger = logger.NewEchoAdapter(log.Module("echo"))
//
// Output, prefix and header settings are ignored. SetLevel is honored as an
// additional filter in front of the module logger's own level.
type EchoAdapter struct {
	log   Logger
	level atomic.Uint32
}

// NewEchoAdapter creates an adapter writing to log. A nil log discards.
func NewEchoAdapter(log Logger) *EchoAdapter {
	if log == nil {
		log = NewDiscardLogger()
	}
	a := &EchoAdapter{log: log}
	a.level.Store(uint32(echolog.INFO))
	return a
}

func (a *EchoAdapter) enabled(l echolog.Lvl) bool {
	return uint32(l) >= a.level.Load()
}

func (a *EchoAdapter) emit(l echolog.Lvl, msg string, fields ...Field) {
	if !a.enabled(l) {
		return
	}
	switch l {
	case echolog.DEBUG:
		a.log.Debug(msg, fields...)
	case echolog.WARN:
		a.log.Warn(msg, fields...)
	case echolog.ERROR:
		a.log.Error(msg, fields...)
	default:
		a.log.Info(msg, fields...)
	}
}

func (a *EchoAdapter) Output() io.Writer      { return io.Discard }
func (a *EchoAdapter) SetOutput(io.Writer)    {}
func (a *EchoAdapter) Prefix() string         { return "" }
func (a *EchoAdapter) SetPrefix(string)       {}
func (a *EchoAdapter) SetHeader(string)       {}
func (a *EchoAdapter) Level() echolog.Lvl     { return echolog.Lvl(a.level.Load()) }
func (a *EchoAdapter) SetLevel(l echolog.Lvl) { a.level.Store(uint32(l)) }

func (a *EchoAdapter) Print(i ...any)                 { a.emit(echolog.INFO, fmt.Sprint(i...)) }
func (a *EchoAdapter) Printf(format string, v ...any) { a.emit(echolog.INFO, fmt.Sprintf(format, v...)) }
func (a *EchoAdapter) Printj(j echolog.JSON)          { a.emit(echolog.INFO, "echo", Any("data", j)) }

func (a *EchoAdapter) Debug(i ...any)                 { a.emit(echolog.DEBUG, fmt.Sprint(i...)) }
func (a *EchoAdapter) Debugf(format string, v ...any) { a.emit(echolog.DEBUG, fmt.Sprintf(format, v...)) }
func (a *EchoAdapter) Debugj(j echolog.JSON)          { a.emit(echolog.DEBUG, "echo", Any("data", j)) }

func (a *EchoAdapter) Info(i ...any)                 { a.emit(echolog.INFO, fmt.Sprint(i...)) }
func (a *EchoAdapter) Infof(format string, v ...any) { a.emit(echolog.INFO, fmt.Sprintf(format, v...)) }
func (a *EchoAdapter) Infoj(j echolog.JSON)          { a.emit(echolog.INFO, "echo", Any("data", j)) }

func (a *EchoAdapter) Warn(i ...any)                 { a.emit(echolog.WARN, fmt.Sprint(i...)) }
func (a *EchoAdapter) Warnf(format string, v ...any) { a.emit(echolog.WARN, fmt.Sprintf(format, v...)) }
func (a *EchoAdapter) Warnj(j echolog.JSON)          { a.emit(echolog.WARN, "echo", Any("data", j)) }

func (a *EchoAdapter) Error(i ...any)                 { a.emit(echolog.ERROR, fmt.Sprint(i...)) }
func (a *EchoAdapter) Errorf(format string, v ...any) { a.emit(echolog.ERROR, fmt.Sprintf(format, v...)) }
func (a *EchoAdapter) Errorj(j echolog.JSON)          { a.emit(echolog.ERROR, "echo", Any("data", j)) }

// Fatal and Panic never exit the process; they log and panic so the
// server's recover middleware or shutdown path stays in control.

func (a *EchoAdapter) Fatal(i ...any)                 { a.abort(fmt.Sprint(i...)) }
func (a *EchoAdapter) Fatalf(format string, v ...any) { a.abort(fmt.Sprintf(format, v...)) }
func (a *EchoAdapter) Fatalj(j echolog.JSON)          { a.abort(fmt.Sprintf("%v", j)) }
func (a *EchoAdapter) Panic(i ...any)                 { a.abort(fmt.Sprint(i...)) }
func (a *EchoAdapter) Panicf(format string, v ...any) { a.abort(fmt.Sprintf(format, v...)) }
func (a *EchoAdapter) Panicj(j echolog.JSON)          { a.abort(fmt.Sprintf("%v", j)) }

func (a *EchoAdapter) abort(msg string) {
	a.log.Error(msg)
	panic("echo: " + msg)
}
