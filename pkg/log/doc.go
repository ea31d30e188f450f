/*
Package log provides structured logging for vattid using zerolog.

It wraps the zerolog library with a global Logger configured by Init and
constructors for child loggers scoped by component, job id, namespace or
run name; call sites log through one of those child loggers.
*/
package log
