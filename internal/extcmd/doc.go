// Package extcmd implements the pipeline's external collaborators as
// configured commands.
//
// Every command receives a JSON request on stdin and writes newline-delimited
// JSON to stdout: zero or more progress events followed by one terminal event.
// A complete event carries the step output in its "result" member; an error
// event's text becomes the step failure reason. Lines that are not JSON are
// treated as tool chatter and logged at debug level.
package extcmd
