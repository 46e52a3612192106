/*
 * Project: ipc-lite
 * ---------------------
 * Authors:
 *   Minjian Chen 813534
 *   Shijie Liu   813277
 *   Weizhi Xu    752454
 *   Wenqing Xue  813044
 *   Zijun Chen   813190
 */

// Package ipc lets independent processes call each other's methods and
// exchange broadcast messages over a publish/subscribe transport.
//
// A Node owns one transport connection. Methods registered on a node are
// reachable at the subject "ipc.<nodeID>.<method>", broadcast channels live
// at "broadcast.<channel>":
//
//	server, _ := ipc.New(ipc.WithNodeID("server"))
//	server.MustRegister("add", func(a, b int) int { return a + b })
//	_ = server.Connect(ctx)
//
//	client, _ := ipc.New()
//	_ = client.Connect(ctx)
//	sum, err := client.Call(ctx, "server", "add", 2, 3)
//
// Requests and responses travel in envelopes (see package envelope). A
// handler error never crosses the process boundary as a value, the caller
// gets a *RemoteError carrying its text. Failures on the caller side are
// reported as *ConnectionError, *TimeoutError, *SerializationError,
// *MethodNotFoundError or *InvalidRequestError.
//
// Handlers that take a context.Context are suspending: they run on their
// own goroutine so the delivery of other requests is not held up. All
// other handlers run on the delivery goroutine of their subscription.
package ipc
