package allreduce

import (
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rankcoord/collcomm"
)

// A StreamAllreducer splits a vector up into smaller
// messages and streams the messages through all the ranks
// at once, arranged in a ring.
//
// The reduction has two phases: Reduce and Broadcast.
// During Reduce, the fully reduced vector arrives at the
// first rank.
// During Broadcast, the reduced vector is streamed from
// the first rank to all the other ranks.
type StreamAllreducer struct {
	// Granularity determines how many chunks the data is
	// split up into.
	// The actual number of chunks is multiplied by the
	// number of ranks.
	//
	// If Granularity is 0, it is treated as 1.
	Granularity int
}

// Allreduce calls fn on chunks of data at a time and
// returns a vector resulting from the final reduction.
func (s StreamAllreducer) Allreduce(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	if len(data) == 0 || c.Size() == 1 {
		return fn(data), nil
	}
	if c.Index() == 0 {
		return s.allreduceRoot(c, data)
	}
	return s.allreduceOther(c, data, fn)
}

func (s StreamAllreducer) allreduceRoot(c *collcomm.Comms, data []float64) ([]float64, error) {
	chunksOut := s.chunkify(c, data)
	reduced := make([]float64, 0, len(data))

	// Kick off the reduction cycle.
	if err := (&streamPacket{packetType: streamPacketReduce, payload: chunksOut[0]}).Send(c); err != nil {
		return nil, err
	}
	chunksOut = chunksOut[1:]

	// Push the reduction through the ring.
	waitingReduceAck := true
	for len(reduced) < len(data) {
		packet, err := recvStreamPacket(c)
		if err != nil {
			return nil, err
		}
		switch packet.packetType {
		case streamPacketReduce:
			reduced = append(reduced, packet.payload...)
			err = (&streamPacket{packetType: streamPacketReduceAck}).Send(c)
		case streamPacketReduceAck:
			if !waitingReduceAck {
				panic("unexpected ACK")
			}
			if len(chunksOut) > 0 {
				err = (&streamPacket{packetType: streamPacketReduce, payload: chunksOut[0]}).Send(c)
				chunksOut = chunksOut[1:]
			} else {
				waitingReduceAck = false
			}
		default:
			panic("unexpected packet type")
		}
		if err != nil {
			return nil, err
		}
	}

	if len(chunksOut) > 0 {
		panic("unexpected reduction completion")
	} else if len(reduced) != len(data) {
		panic("excess data")
	}

	// Push the data through the bcast cycle.
	for _, chunk := range s.chunkify(c, reduced) {
		if err := (&streamPacket{packetType: streamPacketBcast, payload: chunk}).Send(c); err != nil {
			return nil, err
		}
		for {
			packet, err := recvStreamPacket(c)
			if err != nil {
				return nil, err
			}
			if packet.packetType == streamPacketReduceAck {
				if !waitingReduceAck {
					panic("unexpected ACK")
				}
				waitingReduceAck = false
			} else if packet.packetType == streamPacketBcastAck {
				break
			} else {
				panic("unexpected packet type")
			}
		}
	}

	return reduced, nil
}

func (s StreamAllreducer) allreduceOther(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	var reduced []float64

	isLastRank := c.Index()+1 == c.Size()

	// Reduce our data into the stream.
	var reduceBlocked bool
	var reduceBuf []*streamPacket
	remainingData := data
	for len(reduced) == 0 {
		packet, err := recvStreamPacket(c)
		if err != nil {
			return nil, err
		}
		switch packet.packetType {
		case streamPacketReduce:
			err = (&streamPacket{packetType: streamPacketReduceAck}).Send(c)
			chunk := fn(packet.payload, remainingData[:len(packet.payload)])
			remainingData = remainingData[len(packet.payload):]
			outPacket := &streamPacket{packetType: streamPacketReduce, payload: chunk}
			reduceBuf = append(reduceBuf, outPacket)
		case streamPacketReduceAck:
			if !reduceBlocked {
				panic("unexpected ACK")
			}
			reduceBlocked = false
		case streamPacketBcast:
			if len(reduceBuf) > 0 {
				panic("got bcast before reduce finished")
			}
			reduced = append(reduced, packet.payload...)
			err = (&streamPacket{packetType: streamPacketBcastAck}).Send(c)
			if err == nil && !isLastRank {
				// Otherwise, the packet will never reach
				// the next rank in the ring.
				err = packet.Send(c)
			}
		default:
			panic("unexpected packet type")
		}
		if err == nil && !reduceBlocked && len(reduceBuf) > 0 {
			err = reduceBuf[0].Send(c)
			essentials.OrderedDelete(&reduceBuf, 0)
			reduceBlocked = true
		}
		if err != nil {
			return nil, err
		}
	}

	// Read the broadcasted reduction.
	bcastBlocked := true
	var bcastBuf []*streamPacket
	for len(reduced) < len(data) || len(bcastBuf) > 0 {
		packet, err := recvStreamPacket(c)
		if err != nil {
			return nil, err
		}
		switch packet.packetType {
		case streamPacketReduceAck:
			if !reduceBlocked {
				panic("unexpected ACK")
			}
			reduceBlocked = false
		case streamPacketBcast:
			reduced = append(reduced, packet.payload...)
			err = (&streamPacket{packetType: streamPacketBcastAck}).Send(c)
			if !isLastRank {
				outPacket := &streamPacket{packetType: streamPacketBcast, payload: packet.payload}
				bcastBuf = append(bcastBuf, outPacket)
			}
		case streamPacketBcastAck:
			if !bcastBlocked {
				panic("unexpected ACK")
			}
			bcastBlocked = false
		default:
			panic("unexpected packet type")
		}
		if err == nil && !bcastBlocked && len(bcastBuf) > 0 {
			err = bcastBuf[0].Send(c)
			essentials.OrderedDelete(&bcastBuf, 0)
			bcastBlocked = true
		}
		if err != nil {
			return nil, err
		}
	}

	if reduceBlocked {
		panic("missed expected ACK")
	}

	// Wait for the ACK of the last forwarded chunk so that
	// nothing for this operation is left in flight.
	if bcastBlocked && !isLastRank {
		packet, err := recvStreamPacket(c)
		if err != nil {
			return nil, err
		}
		if packet.packetType != streamPacketBcastAck {
			panic("unexpected packet type")
		}
	}

	return reduced, nil
}

func (s StreamAllreducer) chunkify(c *collcomm.Comms, data []float64) [][]float64 {
	granularity := s.Granularity
	if granularity == 0 {
		granularity = 1
	}
	chunkSize := len(data) / (c.Size() * granularity)
	if chunkSize < 1 {
		chunkSize = 1
	}
	var res [][]float64
	for i := 0; i < len(data); i += chunkSize {
		if i+chunkSize > len(data) {
			res = append(res, data[i:])
		} else {
			res = append(res, data[i:i+chunkSize])
		}
	}
	return res
}

type streamPacketType uint8

const (
	streamPacketReduce streamPacketType = iota
	streamPacketReduceAck
	streamPacketBcast
	streamPacketBcastAck
)

type streamPacket struct {
	packetType streamPacketType
	payload    []float64
}

func recvStreamPacket(c *collcomm.Comms) (*streamPacket, error) {
	msg, err := c.RecvMessage()
	if err != nil {
		return nil, err
	}
	return &streamPacket{packetType: streamPacketType(msg.Kind), payload: msg.Payload}, nil
}

// Send sends the packet to the appropriate rank.
// For ACKs, this is the previous rank.
// For other messages, this is the next rank.
func (s *streamPacket) Send(c *collcomm.Comms) error {
	idx := c.Index()
	var dstIdx int
	if s.packetType == streamPacketReduceAck || s.packetType == streamPacketBcastAck {
		dstIdx = idx - 1
		if dstIdx < 0 {
			dstIdx = c.Size() - 1
		}
	} else {
		dstIdx = (idx + 1) % c.Size()
	}
	return c.SendKind(dstIdx, uint8(s.packetType), s.payload)
}
