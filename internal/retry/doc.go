// Package retry provides a generic exponential-backoff executor for
// fallible operations.
//
// It is used wherever the daemon talks to hardware that may not be ready
// yet: serial ports that are still enumerating after a hot-plug event,
// printers whose spooler handle is briefly unavailable, and so on.
//
// # Usage
//
//	err := retry.Do(ctx, func() error {
//	    return adapter.open()
//	}, retry.DefaultOptions())
//
// On exhaustion the returned error is an *ExhaustedError carrying the
// attempt count and the last underlying cause; errors.Is/As work through
// it as expected.
package retry
