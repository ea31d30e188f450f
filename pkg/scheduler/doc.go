/*
Package scheduler drives vattid's periodic sweeps — job timeouts, platform
poll-and-update, bucket GC — from a single one-second ticker, and
supervises the bus consumer and producer goroutines, restarting either on
failure and shutting the daemon down once too many bus failures
accumulate.
*/
package scheduler
