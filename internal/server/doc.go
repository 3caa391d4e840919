// Package server accepts meter connections and runs each one through the
// decrypt, decode and aggregate pipeline.
//
// A single goroutine runs the accept loop and hands every connection to a
// fixed worker pool. A worker owns one connection for its whole life and
// processes that device's messages in arrival order. Workers share the key
// cache and the power aggregator; everything else they touch is atomic.
//
// Shutdown is a drain, not a halt: once the server stops accepting, open
// connections are served until the peer closes them or Shutdown's context
// expires, at which point they are closed forcibly.
package server
