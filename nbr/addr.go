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

package nbr

import "fmt"

// Addr is a link-layer address. It is always stored as 8 bytes in memory;
// spec.md §6 allows the wire encoding to be 2 or 8 bytes (L), with short
// addresses zero-extended the way IEEE 802.15.4 short/extended addressing
// does.
type Addr [8]byte

// Broadcast is the link-layer broadcast sentinel (spec.md §4.1 "Normal
// OTP": "the receiver is the broadcast sentinel 0xFF…FF").
var Broadcast = Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsBroadcast reports whether a equals the broadcast sentinel.
func (a Addr) IsBroadcast() bool {
	return a == Broadcast
}

func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7])
}

// Short returns the low two bytes, used when the wire encoding uses a
// 2-byte short address (L=2).
func (a Addr) Short() [2]byte {
	return [2]byte{a[6], a[7]}
}

// FromShort builds an Addr from a 2-byte short address, zero-extending it.
func FromShort(b [2]byte) Addr {
	var a Addr
	a[6], a[7] = b[0], b[1]
	return a
}
