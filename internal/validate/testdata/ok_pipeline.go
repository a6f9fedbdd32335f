package p

import "flowcc/flow"

const N = 8

func Produce(out flow.OStream[int32]) {
	//flow:unroll factor=2
	for i := 0; i < N; i++ {
		out.Write(int32(i))
	}
	out.Close()
}

func Consume(in flow.IStream[int32], acc flow.OBuffer[[N]int32]) {}

func Sink(in flow.IBuffer[[N]int32]) {}

func Top() {
	q := flow.NewStream[int32](4)
	b := flow.NewBuffer[[N]int32](2, flow.Partition(flow.Cyclic(2)))
	flow.Task().
		Invoke(Produce, q).
		Invoke(Consume, q, b).
		Invoke(Sink, b).
		Wait()
}
