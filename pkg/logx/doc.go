// Package logx configures ruche's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller), or JSON when
//     running behind a log collector
//   - File output JSON-structured
//   - Level and sinks swappable at runtime through Service.Apply
package logx
