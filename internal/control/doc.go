// Package control is the MQTT control plane.
//
// One paho client subscribes to topic_subscribe with {source_name} set to
// "#". The last topic segment selects the target: "list" publishes the JSON
// array of camera names, "daemon" accepts {"cmd":"restart"}, and a camera
// name accepts record_start, record_stop, status, watcher_start, and
// watcher_stop. Names and commands compare with Unicode case folding.
//
// Client also implements recorder.Publisher, sending each status message to
// topic_publish expanded with the camera name.
package control
