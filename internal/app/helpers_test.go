package app

import (
	"bytes"
	"log/slog"
	"strconv"
)

func newDiscardLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
