package mixed

import "flowcc/flow"

//flow:target rtl intel
func Count(in flow.IStream[int32]) int64 {
	var n int64
	for {
		if _, ok := in.Read(); !ok {
			return n
		}
		n++
	}
}

func Emit(out flow.OStream[int32]) {
	out.Write(1)
	out.Close()
}

func Top() {
	q := flow.NewStream[int32](2)
	spare := flow.NewStream[int32](2)
	flow.Task().
		Invoke(Emit, q).
		Invoke(Count, q).
		Wait()
}
