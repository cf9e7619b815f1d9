// Package logx provides a small structured logging facade over zerolog.
//
// The zero Logger value is a no-op, so components can take a Logger without
// nil checks. Service owns the sinks (console, optional file) and can swap
// them at runtime via Apply when the config file changes.
package logx
