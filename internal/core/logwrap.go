package core

import (
	"io"
	"log"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/sirupsen/logrus"
)

var _ io.Writer = (*entryWrapper)(nil)

// entryWrapper wraps a logrus entry to adapt it as an io.Writer.
type entryWrapper struct {
	log *logrus.Entry
}

func (w *entryWrapper) Write(p []byte) (n int, err error) {
	w.log.Debug(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// RouteXGBLogs redirects the xgb package logger into the provided
// entry at debug level.
func RouteXGBLogs(logger *logrus.Entry) {
	xgb.Logger = log.New(&entryWrapper{log: logger}, "", 0)
}
