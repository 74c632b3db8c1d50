// Package dispatch is the controller side of the bridge.
//
// The Dispatcher publishes commands into the command channel and reads the
// latest result back. It does not wait for the worker: Publish returns as soon
// as the record is on disk and GetResult returns whatever the result channel
// holds at that moment.
//
// Result correlation:
//   - The worker stamps object results with _commandExecuted and
//     _responseTimestamp.
//   - Freshness extracts both; Stamp.Matches tells a caller whether a result
//     belongs to the command it published.
//   - A result without a stamp (a verbatim non-object payload) cannot be
//     correlated.
//
// Error handling:
//   - No result file → the no_results payload, not an error
//   - Channel I/O failure → returned as *channel.IOError
package dispatch
