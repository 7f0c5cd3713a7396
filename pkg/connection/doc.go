// Package connection implements reconnection for the transport: the
// exponential backoff policy and the reconnection state machine.
//
// # Backoff
//
// After n failed attempts the Reconnector waits
//
//	min(Max, Initial * 2^n)
//
// before dialing again, computed without overflow for any n. An optional jitter fraction J adds
// up to Initial*2^n*J on top of the base delay, after which the result is
// capped at Max again.
//
// # Reconnector
//
// A Reconnector makes one dial attempt immediately, then alternates between
// waiting out a backoff delay and dialing until a connection is established
// or MaxAttempts failed attempts have been made:
//
//	Backoff --timer--> Connecting --ok--> Succeeded
//	   ^                   |
//	   +----retry----------+--budget spent--> Failed
//
// A MaxAttempts of 0 or 1 both mean a single attempt. Cancelling the
// context passed to Step or Run moves the Reconnector to Failed; a
// connection that completes after cancellation is closed.
package connection
