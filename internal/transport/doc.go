// Package transport provides concrete cluster.Channel implementations and
// the factories that spawn worker nodes behind them.
//
// Two channel flavours exist:
//
//   - Pipe: a connected pair of in-memory channels. Used by LocalFactory
//     to run workers as goroutines, and throughout the tests.
//   - StreamChannel: newline-delimited JSON over an io.Reader/io.Writer
//     pair. Used by ProcessFactory over a child process's stdio, and by
//     the worker binary to talk to its parent.
//
// Both buffer inbound messages so Receive never blocks.
package transport
