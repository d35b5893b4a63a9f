// Package ui provides terminal UI components for the castscan CLI.
//
// Components are built on Bubble Tea, Bubbles and Lipgloss:
//
//   - Header: command banner showing the operation and its parameters
//   - Result: success or failure box printed when a command finishes
//   - RenderDeviceTable / RenderDevicePlain: device lists for terminals and pipes
//   - ScanModel: progress bar and running list of devices during a timed scan
//   - WatchModel: live device table fed by manager events
//
// Callers decide between styled and plain output with IsTerminal.
//
// Logging is silent unless CASTSCAN_LOG_LEVEL is set, so zap output does
// not interleave with the rendered screens.
package ui
