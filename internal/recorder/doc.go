// Package recorder runs one supervisor per camera.
//
// A Supervisor loops on a short poll interval. While recording is wanted
// (record_autostart or an explicit record_start, and no record_stop) each
// cycle creates the dated recording directory, evicts old files with
// storage.Reap, runs cmd_before, runs the main step for up to record_time,
// then runs cmd_after. The main step is either an arbitrary shell command or
// the built-in decode/encode pipeline from package pipeline.
//
// Control methods (RecordStart, RecordStop, WatcherStart, WatcherStop,
// Stop) only flip atomic signals or cancel the running cycle, so they are
// safe to call from the MQTT receive goroutine. Status publishes are issued
// from the supervisor goroutine in transition order.
//
// Repeated start failures (the stream never produced data) trip a sliding
// window of start_error_atempt_cnt attempts; once start_error_threshold is
// reached the supervisor publishes an "error" status and sleeps
// start_error_sleep before trying again.
package recorder
