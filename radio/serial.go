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

package radio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialDriver bridges Driver to a transceiver board attached over UART,
// for deployments that run the engine against real radio hardware rather
// than radio.Sim or an on-host simulation. The wire protocol is a small
// command/event framing: the host writes a command byte
// (on/off/cca/shr/prepare/transmit/read/flush) followed by a 2-byte
// big-endian payload length and the payload; the board sends single-byte
// event codes, and answers reads with raw bytes (one CCA result byte, n
// partial-read bytes, or a 2-byte length followed by the remainder). This
// mirrors the
// boundary secrdc.c draws around NETSTACK_RADIO, just relocated across a
// serial link instead of a memory-mapped register file.
type SerialDriver struct {
	port serial.Port
	r    *bufio.Reader

	mu     sync.Mutex
	events chan EventNotification
	now    func() time.Duration

	closeOnce sync.Once
}

const (
	cmdOn byte = iota
	cmdOff
	cmdCCA
	cmdSHR
	cmdPrepare
	cmdTransmit
	cmdReadPartial
	cmdReadRemainder
	cmdFlush
)

// OpenSerial opens portName at baud and starts the background reader that
// turns board notifications into Events(). now supplies engine-consistent
// timestamps for received events.
func OpenSerial(portName string, baud int, now func() time.Duration) (*SerialDriver, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("radio: open %s: %w", portName, err)
	}
	d := &SerialDriver{
		port:   port,
		r:      bufio.NewReader(port),
		events: make(chan EventNotification, 16),
		now:    now,
	}
	go d.readEvents()
	return d, nil
}

func (d *SerialDriver) readEvents() {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			d.events <- EventNotification{Event: EventError, At: d.now(), Err: err}
			return
		}
		switch b {
		case 0x10:
			d.events <- EventNotification{Event: EventSFD, At: d.now()}
		case 0x11:
			d.events <- EventNotification{Event: EventFIFOP, At: d.now()}
		case 0x12:
			d.events <- EventNotification{Event: EventFinalFIFOP, At: d.now()}
		case 0x13:
			d.events <- EventNotification{Event: EventTXDone, At: d.now()}
		}
	}
}

func (d *SerialDriver) writeCmd(cmd byte, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, 0, 3+len(payload))
	buf = append(buf, cmd)
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(payload)))
	buf = append(buf, l[:]...)
	buf = append(buf, payload...)
	_, err := d.port.Write(buf)
	return err
}

func (d *SerialDriver) On() error  { return d.writeCmd(cmdOn, nil) }
func (d *SerialDriver) Off() error { return d.writeCmd(cmdOff, nil) }

func (d *SerialDriver) ChannelClear() (bool, error) {
	if err := d.writeCmd(cmdCCA, nil); err != nil {
		return false, err
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

func (d *SerialDriver) EnableSHRSearch(enabled bool) error {
	v := byte(0)
	if enabled {
		v = 1
	}
	return d.writeCmd(cmdSHR, []byte{v})
}

func (d *SerialDriver) Prepare(frame []byte) error {
	return d.writeCmd(cmdPrepare, frame)
}

func (d *SerialDriver) Transmit() error {
	return d.writeCmd(cmdTransmit, nil)
}

func (d *SerialDriver) ReadPartial(n int) ([]byte, error) {
	if err := d.writeCmd(cmdReadPartial, []byte{byte(n)}); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *SerialDriver) ReadRemainder() ([]byte, error) {
	if err := d.writeCmd(cmdReadRemainder, nil); err != nil {
		return nil, err
	}
	var l [2]byte
	if _, err := io.ReadFull(d.r, l[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(l[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *SerialDriver) FlushRX() error {
	return d.writeCmd(cmdFlush, nil)
}

func (d *SerialDriver) Events() <-chan EventNotification {
	return d.events
}

// Close releases the underlying serial port. Safe to call more than
// once.
func (d *SerialDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.port.Close()
	})
	if err == nil {
		return nil
	}
	return errors.New("radio: " + err.Error())
}
