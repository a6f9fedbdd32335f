package p

import "flowcc/flow"

func Work(in flow.IStream[int32], n int) {
	seen := map[int32]bool{}
	go func() {}()
	select {}
	//flow:unroll
	for i := 0; i < n; i++ {
		v, _ := in.Read()
		seen[v] = true
	}
}

func Mid(in flow.IStream[int32]) {
	if true {
		flow.Task().Invoke(Work, in, 4).Wait()
	}
}

func Top(in flow.IStream[int32]) {
	flow.Task().Invoke(Work, in, 4).Wait()
	flow.Task().Invoke(Mid, in).Wait()
}
