// Package logx configures replybot's structured logging.
//
// It wraps zerolog behind a small value type (logx.Logger) so components can
// hold a logger without caring whether it is live, derived or a no-op:
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON-structured
//   - Service.Apply swaps level and sinks at runtime (config hot reload)
package logx
