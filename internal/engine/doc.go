// Package engine wires the stores, indexers and workers of one graph into a
// single handle used by the CLI and the MCP server.
//
// An Engine owns the data directory lock, so at most one process writes a
// data directory at a time. Import and live sync share the engine's
// semaphore, which bounds the number of files processed at once.
package engine
