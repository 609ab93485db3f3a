/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sde

import (
	"sync"

	"github.com/meshsec/llsec/nbr"
)

// SendResult reports the MAC-layer outcome of one outgoing frame
// (spec.md §4.5.5).
type SendResult int

const (
	ResultOK SendResult = iota
	ResultNoAck
	ResultCollision
	ResultError
)

func (r SendResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNoAck:
		return "no-ack"
	case ResultCollision:
		return "collision"
	default:
		return "error"
	}
}

// BufferedFrame is one outbound frame awaiting strobing (struct
// buffered_frame in secrdc.c). Done is closed once the strobe loop has
// produced a final SendResult.
type BufferedFrame struct {
	Receiver      nbr.Addr
	Broadcast     bool
	Payload       []byte
	Counter       uint32
	Transmissions int

	Done   chan struct{}
	Result SendResult
}

// NewBufferedFrame wraps payload for the send queue. counter is the
// frame-counter value the OTP header inside payload already carries,
// kept alongside so the strobe loop can rebuild the acknowledgement
// nonce without re-parsing payload.
func NewBufferedFrame(receiver nbr.Addr, broadcast bool, payload []byte, counter uint32) *BufferedFrame {
	return &BufferedFrame{
		Receiver:  receiver,
		Broadcast: broadcast,
		Payload:   payload,
		Counter:   counter,
		Done:      make(chan struct{}),
	}
}

func (bf *BufferedFrame) finish(result SendResult) {
	bf.Result = result
	close(bf.Done)
}

// SendQueue is the engine's outbound frame list (send_list /
// queue_frame in secrdc.c), drained once per wake completion (spec.md
// §4.5.2: "The engine enqueues outgoing frames and, on each wake
// completion, drains the queue").
type SendQueue struct {
	mu    sync.Mutex
	items []*BufferedFrame
}

func NewSendQueue() *SendQueue {
	return &SendQueue{}
}

// Enqueue appends bf to the tail of the queue.
func (q *SendQueue) Enqueue(bf *BufferedFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, bf)
}

// Dequeue pops the head of the queue, or returns nil if empty.
func (q *SendQueue) Dequeue() *BufferedFrame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	bf := q.items[0]
	q.items = q.items[1:]
	return bf
}

// Len reports how many frames are queued.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
