// Package dedupe suppresses duplicate webhook deliveries using a
// time-based cache keyed by message id.
package dedupe
