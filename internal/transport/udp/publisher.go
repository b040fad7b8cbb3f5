// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "waterdetect/internal/log"
)

// Magic identifies a status packet ("WDET").
const Magic uint32 = 0x57444554

// PacketSize is the encoded length of a status packet.
const PacketSize = 4 + 4 + 8 + 4 + 1 + 1 + 4 + 4

// ErrPacket is returned by DecodeStatus for malformed packets.
var ErrPacket = errors.New("malformed status packet")

// Status flag bits.
const (
	FlagSubmerged uint8 = 1 << iota
	FlagDecision
	FlagChanged
)

// Status is the detector state carried by one packet.
type Status struct {
	Window    uint32
	Phase     uint8
	Submerged bool
	Decision  bool
	Changed   bool
	Amp1      float32
	Amp2      float32
}

// Packet is a decoded status datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64 // Unix nanoseconds
	Status
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Magic             | uint32         | 4            | "WDET"                  |
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Window            | uint32         | 4            | Completed windows       |
| Phase             | uint8          | 1            | 0 inactive, 1 calib, 2  |
| Flags             | uint8          | 1            | submerged|decision|chg  |
| Amp1, Amp2        | float32 x 2    | 8            | Microphone levels       |
+-----------------------------------------------------------------------------+
*/
type wirePacket struct {
	Magic     uint32
	Sequence  uint32
	Timestamp int64
	Window    uint32
	Phase     uint8
	Flags     uint8
	Amp1      float32
	Amp2      float32
}

// DecodeStatus parses a datagram produced by a UDPPublisher.
func DecodeStatus(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPacket, len(b))
	}
	var w wirePacket
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &w); err != nil {
		return Packet{}, fmt.Errorf("%w: %w", ErrPacket, err)
	}
	if w.Magic != Magic {
		return Packet{}, fmt.Errorf("%w: bad magic %#x", ErrPacket, w.Magic)
	}
	return Packet{
		Sequence:  w.Sequence,
		Timestamp: w.Timestamp,
		Status: Status{
			Window:    w.Window,
			Phase:     w.Phase,
			Submerged: w.Flags&FlagSubmerged != 0,
			Decision:  w.Flags&FlagDecision != 0,
			Changed:   w.Flags&FlagChanged != 0,
			Amp1:      w.Amp1,
			Amp2:      w.Amp2,
		},
	}, nil
}

// UDPPublisher periodically samples the detector status and sends it over
// UDP. It runs in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   *UDPSender
	source   func() Status // Latest detector status
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	sequenceNum uint32
	now         func() time.Time

	packetBuffer *bytes.Buffer // Reused for every packet
}

// NewUDPPublisher creates a publisher sending source() every interval.
// If the provided interval is invalid (<= 0), it defaults to 100ms.
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source func() Status) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: status source cannot be nil")
	}

	if interval <= 0 {
		interval = 100 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	buf := new(bytes.Buffer)
	buf.Grow(PacketSize)
	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		now:          time.Now,
		packetBuffer: buf,
	}, nil
}

// Start begins the periodic publishing process. Calling Start while running
// is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals avoid racing on p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				applog.Debugf("UDPPublisher: Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// Calling Stop when not running is a no-op.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished.")
	return nil
}

// encode writes one packet for st into the reusable buffer.
func (p *UDPPublisher) encode(st Status) ([]byte, error) {
	p.sequenceNum++

	var flags uint8
	if st.Submerged {
		flags |= FlagSubmerged
	}
	if st.Decision {
		flags |= FlagDecision
	}
	if st.Changed {
		flags |= FlagChanged
	}

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, wirePacket{
		Magic:     Magic,
		Sequence:  p.sequenceNum,
		Timestamp: p.now().UnixNano(),
		Window:    st.Window,
		Phase:     st.Phase,
		Flags:     flags,
		Amp1:      st.Amp1,
		Amp2:      st.Amp2,
	})
	if err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

func (p *UDPPublisher) buildAndSendPacket() {
	packet, err := p.encode(p.source())
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing status: %v", err)
		return
	}
	if err := p.sender.Send(packet); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	}
}

// Close implements the io.Closer interface. It stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
