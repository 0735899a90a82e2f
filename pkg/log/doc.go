/*
Package log wraps zerolog for the daemon's process-wide structured logger.

Init must be called once at startup; WithComponent/WithJobID/WithSource
return child loggers carrying the named field on every line.
*/
package log
