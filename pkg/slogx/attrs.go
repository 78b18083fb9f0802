// Package slogx has small helpers for building slog attributes.
package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns the error's message under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns the value's string form under the given key.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}
