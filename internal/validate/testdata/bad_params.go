package p

import "flowcc/flow"

func Produce(out flow.OStream[int32]) {}

func Consume(in flow.IStream[int32], acc flow.OBuffer[[4]int32]) {}

func Sink(in flow.IBuffer[[4]int32]) {}

func Top() {
	q := flow.NewStream[int32](0)
	b := flow.NewBuffer[[4]int32](0, flow.Partition(flow.Block(0)))
	flow.Task().
		Invoke(Produce, q).
		Invoke(Consume, q, b).
		Invoke(Sink, b).
		Wait()
}
