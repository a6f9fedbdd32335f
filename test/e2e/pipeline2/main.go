package main

import (
	"fmt"

	"flowcc/flow"
)

const totalPairs = 4

func stage1(out flow.OStream[uint32]) {
	for i := uint32(0); i < totalPairs; i++ {
		out.Write(i + i)
	}
	out.Close()
}

// stage2 splits every word into big-endian bytes.
func stage2(in flow.IStream[uint32], out flow.OStream[byte]) {
	for {
		val, ok := in.Read()
		if !ok {
			break
		}
		out.Write(byte(val >> 24))
		out.Write(byte(val >> 16))
		out.Write(byte(val >> 8))
		out.Write(byte(val))
	}
	out.Close()
}

func stage3(in flow.IStream[byte]) {
	for count := 0; ; count++ {
		var value uint32
		for i := 0; i < 4; i++ {
			b, ok := in.Read()
			if !ok {
				return
			}
			value = value<<8 | uint32(b)
		}
		fmt.Printf("stage 3: reconstructed integer %d\n", value)
	}
}

func Pipeline() {
	pipe1 := flow.NewStream[uint32](1)
	pipe2 := flow.NewStream[byte](8)
	flow.Task().
		Invoke(stage1, pipe1).
		Invoke(stage2, pipe1, pipe2).
		Invoke(stage3, pipe2).
		Wait()
}

func main() {
	Pipeline()
	fmt.Println("finished")
}
