package p

import "flowcc/flow"

func Leaf(out flow.OStream[int32]) {}

func Ping(in flow.IStream[int32]) {
	flow.Task().Invoke(Pong, in).Wait()
}

func Pong(in flow.IStream[int32]) {
	flow.Task().Invoke(Ping, in).Wait()
}

func Top() {
	q := flow.NewStream[int32](2)
	flow.Task().Invoke(Leaf, q).Invoke(Ping, q).Wait()
}
