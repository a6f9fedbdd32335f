package main

import (
	"fmt"

	"flowcc/flow"
)

const totalCount = 5

func source(out flow.OStream[uint32]) {
	for i := uint32(0); i < totalCount; i++ {
		val := i
		switch i {
		case 1:
			val = 0x19700328
		case 2:
			val = 0x19700101
		}
		out.Write(val)
	}
	out.Close()
}

func filter(in flow.IStream[uint32], out flow.OStream[uint32]) {
	for {
		val, ok := in.Read()
		if !ok {
			break
		}
		switch val {
		case 0x19700328:
			val = 0x20050823
		case 0x19700101:
			val = 0x20071224
		}
		out.Write(val)
	}
	out.Close()
}

func sink(in flow.IStream[uint32]) {
	for count := 0; ; count++ {
		val, ok := in.Read()
		if !ok {
			return
		}
		fmt.Printf("output: count %d got integer 0x%x\n", count, val)
	}
}

func Pipeline() {
	pipe1 := flow.NewStream[uint32](1)
	pipe2 := flow.NewStream[uint32](4)
	flow.Task().
		Invoke(source, pipe1).
		Invoke(filter, pipe1, pipe2).
		Invoke(sink, pipe2).
		Wait()
}

func main() {
	Pipeline()
	fmt.Println("finished")
}
