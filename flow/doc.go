// Package flow is the task-graph DSL compiled by flowcc.
//
// A task is a Go function whose parameters are ports: IStream and OStream
// for FIFO channels, IBuffer and OBuffer for multi-section memories, MMap
// and AsyncMMap for host memory, or plain scalars. An upper-level task
// declares local channels and composes children:
//
//	func Top(in flow.MMap[flow.Const[float32]], out flow.MMap[float32], n uint64) {
//		q := flow.NewStream[float32](8)
//		flow.Task().
//			Invoke(Load, in, q, n).
//			Invoke(Store, q, out, n).
//			Wait()
//	}
//
// Outside the compiler, the same program runs as a goroutine simulation:
// every invocation lane is a goroutine and every stream is a bounded queue.
package flow
