// Package publish hands a finished project to its publishing targets.
//
// Platforms with native scheduling run a configured scheduling command.
// Platforms without it get a single webhook payload posted to an external
// workflow runner, which owns scheduling from then on. Either way the core
// only records whether the hand-off was dispatched or failed.
package publish
