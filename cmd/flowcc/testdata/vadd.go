package vadd

import "flowcc/flow"

func Load(in flow.MMap[flow.Const[float32]], out flow.OStream[float32], n uint64) {
	//flow:pipeline II=1
	for i := uint64(0); i < n; i++ {
		out.Write(in.Data()[i])
	}
	out.Close()
}

func Add(a, b flow.IStream[float32], c flow.OStream[float32]) {
	for {
		x, ok := a.Read()
		if !ok {
			break
		}
		y, _ := b.Read()
		c.Write(x + y)
	}
	c.Close()
}

func Store(in flow.IStream[float32], out flow.MMap[float32], n uint64) {
	for i := uint64(0); i < n; i++ {
		v, _ := in.Read()
		out.Data()[i] = v
	}
}

func scale(v float32) float32 {
	return v * 2
}

//flow:target hls xilinx
func VecAdd(a, b flow.MMap[flow.Const[float32]], c flow.MMap[float32], n uint64) {
	qa := flow.NewStream[float32](8)
	qb := flow.NewStream[float32](8)
	qc := flow.NewStream[float32](8)
	flow.Task().
		Invoke(Load, a, qa, n).
		Invoke(Load, b, qb, n).
		Invoke(Add, qa, qb, qc).
		Invoke(Store, qc, c, n).
		Wait()
}
