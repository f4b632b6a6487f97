// Package services defines shared helpers consumed by the recorder loop and
// the external integrations it drives.
//
// Key responsibilities:
//   - Context helpers that stamp camera names, supervisor iterations, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify, which maps a
//     failure to the reaction a camera supervisor takes (swallow, back off,
//     disable the camera, or abandon the iteration).
//
// Use these helpers when wiring new recorder logic so operational behaviour
// (error handling, observability, retries) stays uniform across cameras.
package services
