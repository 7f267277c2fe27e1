// Package logx configures repod's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Loggers derived from a Service live across Service.Apply() calls
package logx
