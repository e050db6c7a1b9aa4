// Package logx configures statusbot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON
//   - an optional chat sink forwards warnings to an operator chat, rate limited
package logx
