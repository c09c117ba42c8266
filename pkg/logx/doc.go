// Package logx configures the bridge's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured (the same file the device-log streamer tails)
//   - Optional forwarding sink (min-level + rate limiting)
package logx
