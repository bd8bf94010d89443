package logsvc

import "github.com/trezcool/collegium/core"

type nopLogger struct{}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() core.Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
