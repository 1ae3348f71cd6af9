// Package dedupe provides a time-windowed, size-bounded set of recently seen
// keys. Sessions use it to log a flapping connection's repeated errors once
// per window instead of on every occurrence.
package dedupe
