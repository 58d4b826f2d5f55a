// Package logging sets up structured JSON logging for memesearch.
//
// Logs go to a size-rotated file under <data_dir>/logs/memesearch.log and,
// outside MCP mode, are also copied to stderr. MCP mode never writes to
// stdout or stderr because stdout carries the protocol stream.
package logging
