// Package logging writes structured JSON logs to a size-rotated file under
// ~/.blockindex/logs and reads them back for the logs command.
//
// Serve mode logs to the file only, since stdout carries the MCP protocol.
package logging
