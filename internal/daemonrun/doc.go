// Package daemonrun is the composition root. Build wires the store, the
// external collaborators, the library, and the publish dispatcher into a
// pipeline runner; Run hosts that runner behind the daemon's HTTP API with
// file logging, log retention, and a pid file.
package daemonrun
