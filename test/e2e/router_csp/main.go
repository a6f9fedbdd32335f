package main

import (
	"fmt"

	"flowcc/flow"
)

const numPackets = 4

// Packets carry the source port, the destination port and a payload byte.
func pack(src, dest, data int) uint32 {
	return uint32(src)<<16 | uint32(dest)<<8 | uint32(data)
}

func producer(id int, out flow.OStream[uint32]) {
	for i := 0; i < numPackets; i++ {
		out.Write(pack(id, (id+i)&1, id*10+i))
	}
	out.Close()
}

func route(in [2]flow.IStream[uint32], out [2]flow.OStream[uint32]) {
	for i := 0; i < numPackets; i++ {
		for _, port := range in {
			pkt, _ := port.Read()
			out[(pkt>>8)&1].Write(pkt)
		}
	}
	out[0].Close()
	out[1].Close()
}

func consumer(id int, in flow.IStream[uint32]) {
	for {
		pkt, ok := in.Read()
		if !ok {
			return
		}
		fmt.Printf("consumer %d got packet from %d with payload %d\n", id, pkt>>16, pkt&0xff)
	}
}

func Router() {
	in := flow.NewStreams[[2]flow.Stream[uint32]](1)
	out := flow.NewStreams[[2]flow.Stream[uint32]](1)
	producers := flow.NewSeq()
	consumers := flow.NewSeq()
	flow.Task().
		Invoke(flow.Vec(2), producer, producers, in).
		Invoke(route, in, out).
		Invoke(flow.Vec(2), consumer, consumers, out).
		Wait()
}

func main() {
	Router()
	fmt.Println("router complete")
}
