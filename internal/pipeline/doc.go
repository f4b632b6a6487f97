// Package pipeline runs the external processes behind a recording.
//
// Runner connects a decode command, whose stdout is a raw fixed-size frame
// stream, to an encode command reading the same stream on stdin. Frames are
// forwarded unmodified; every frame_skip-th frame is also staged to the
// scratch volume. The only buffer between the two is the kernel pipe, so a
// slow encoder throttles the decoder.
//
// Every process runs in its own process group. Teardown sends SIGTERM to the
// group, waits a grace period, then sends SIGKILL, so a shell wrapper never
// leaves an orphaned ffmpeg behind.
package pipeline
