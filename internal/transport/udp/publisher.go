// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// Source supplies the latest values to publish. Snapshot appends them to
// dst and returns the result; it is called from the publisher goroutine.
type Source interface {
	Snapshot(dst []float32) []float32
}

// Publisher periodically packs a Source snapshot into a packet and sends
// it. Packets are big-endian:
//
//	| sequence uint32 | timestamp int64 (ns) | count uint16 | values count*float32 |
type Publisher struct {
	sender   *Sender
	source   Source
	interval time.Duration

	mu       sync.Mutex // guards ticker and done across Start/Stop
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup
	sequence uint32

	values []float32
	packet bytes.Buffer
}

// HeaderSize is the byte length of a packet without values.
const HeaderSize = 4 + 8 + 2

// NewPublisher returns a stopped publisher. A non-positive interval
// defaults to 16ms.
func NewPublisher(interval time.Duration, sender *Sender, source Source) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("udp publisher: source cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		udpLog.Warnf("invalid publish interval, defaulting to %s", interval)
	}
	return &Publisher{sender: sender, source: source, interval: interval}, nil
}

// Start launches the publishing goroutine. It is a no-op when already
// running.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		udpLog.Warnf("publisher already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.done = make(chan struct{})
	ticker, done := p.ticker, p.done

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-done:
				return
			}
		}
	}()
}

// Stop halts the goroutine and waits for it. A final packet with the
// latest snapshot is sent so no trailing values are lost.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.done)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	p.publish()
	return nil
}

func (p *Publisher) publish() {
	p.values = p.source.Snapshot(p.values[:0])
	if len(p.values) > math.MaxUint16 {
		p.values = p.values[:math.MaxUint16]
	}
	p.sequence++

	p.packet.Reset()
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], p.sequence)
	binary.BigEndian.PutUint64(hdr[4:], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint16(hdr[12:], uint16(len(p.values)))
	p.packet.Write(hdr[:])
	if err := binary.Write(&p.packet, binary.BigEndian, p.values); err != nil {
		udpLog.Errorf("packing packet %d: %v", p.sequence, err)
		return
	}

	if err := p.sender.Send(p.packet.Bytes()); err != nil {
		udpLog.Warnf("packet %d: %v", p.sequence, err)
		return
	}
	udpLog.Debugf("sent packet %d (%d bytes)", p.sequence, p.packet.Len())
}

// Close stops the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}

// Packet is a decoded publisher packet.
type Packet struct {
	Sequence  uint32
	Timestamp time.Time
	Values    []float32
}

// Decode parses a packet produced by Publisher.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("udp packet too short: %d bytes", len(b))
	}
	n := int(binary.BigEndian.Uint16(b[12:]))
	if len(b) != HeaderSize+4*n {
		return Packet{}, fmt.Errorf("udp packet has %d bytes, header announces %d values", len(b), n)
	}
	pk := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:]))),
		Values:    make([]float32, n),
	}
	for i := range pk.Values {
		pk.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(b[HeaderSize+4*i:]))
	}
	return pk, nil
}
