// Package expand substitutes named values into the string templates used for
// camera paths, filenames, shell commands, and MQTT topics.
//
// Templates use brace placeholders such as {name} or {storage_path}. Time
// values accept a strftime layout after a colon, e.g. {datetime:%Y-%m-%d};
// integers accept a printf-style width such as {index:06d}. Doubled braces
// ({{ and }}) produce literal braces. Unknown placeholders are errors so a
// misspelled key surfaces at configuration load rather than at record time.
package expand
