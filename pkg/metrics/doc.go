/*
Package metrics declares vattid's Prometheus counters and histograms.

Counters are registered against the default Prometheus registry but are
never served over HTTP; the scheduler reads them back with TakeSnapshot and
logs a one-line debug summary after each sweep that succeeds instead.
*/
package metrics
