package melody

import (
	"encoding/binary"
	"fmt"
	"math"

	"clovis/internal/fileutil"
)

const (
	smfTicksPerQuarter = 480
	smfDefaultVelocity = 100
)

// ExportSMF renders the melody as a type-0 standard MIDI file with a tempo
// event and one lyric meta event per syllable, so the line opens in any DAW.
func ExportSMF(path string, m *Melody) error {
	if m == nil || m.BPM <= 0 {
		return fmt.Errorf("export midi: melody has no tempo")
	}

	track := buildTrack(m)

	header := make([]byte, 14)
	copy(header[0:4], "MThd")
	binary.BigEndian.PutUint32(header[4:8], 6)
	binary.BigEndian.PutUint16(header[8:10], 0) // format 0
	binary.BigEndian.PutUint16(header[10:12], 1)
	binary.BigEndian.PutUint16(header[12:14], smfTicksPerQuarter)

	trackHeader := make([]byte, 8)
	copy(trackHeader[0:4], "MTrk")
	binary.BigEndian.PutUint32(trackHeader[4:8], uint32(len(track)))

	data := make([]byte, 0, len(header)+len(trackHeader)+len(track))
	data = append(data, header...)
	data = append(data, trackHeader...)
	data = append(data, track...)

	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

type midiEvent struct {
	tick  int
	order int // tie-break so offs precede ons at the same tick
	data  []byte
}

func buildTrack(m *Melody) []byte {
	secondsPerTick := 60.0 / m.BPM / smfTicksPerQuarter

	var events []midiEvent

	// tempo meta: microseconds per quarter note
	usPerQuarter := int(math.Round(60_000_000 / m.BPM))
	tempo := []byte{0xFF, 0x51, 0x03,
		byte(usPerQuarter >> 16), byte(usPerQuarter >> 8), byte(usPerQuarter)}
	events = append(events, midiEvent{tick: 0, order: 0, data: tempo})

	for _, n := range m.Notes {
		onTick := int(math.Round(n.Start / secondsPerTick))
		offTick := int(math.Round(n.End() / secondsPerTick))
		if offTick <= onTick {
			offTick = onTick + 1
		}
		velocity := byte(smfDefaultVelocity)
		if n.Velocity > 0 {
			v := int(math.Round(n.Velocity * 127))
			if v > 127 {
				v = 127
			}
			if v < 1 {
				v = 1
			}
			velocity = byte(v)
		}

		if n.Syllable != "" && n.Syllable != "-" {
			lyric := append([]byte{0xFF, 0x05, byte(len(n.Syllable))}, []byte(n.Syllable)...)
			events = append(events, midiEvent{tick: onTick, order: 1, data: lyric})
		}
		events = append(events, midiEvent{tick: onTick, order: 2, data: []byte{0x90, byte(n.Pitch), velocity}})
		events = append(events, midiEvent{tick: offTick, order: 0, data: []byte{0x80, byte(n.Pitch), 0}})
	}

	sortEvents(events)

	var track []byte
	lastTick := 0
	for _, ev := range events {
		track = appendVLQ(track, ev.tick-lastTick)
		track = append(track, ev.data...)
		lastTick = ev.tick
	}
	track = appendVLQ(track, 0)
	track = append(track, 0xFF, 0x2F, 0x00) // end of track
	return track
}

func sortEvents(events []midiEvent) {
	// insertion sort keeps equal-tick events stable
	for i := 1; i < len(events); i++ {
		for j := i; j > 0; j-- {
			a, b := events[j-1], events[j]
			if a.tick < b.tick || (a.tick == b.tick && a.order <= b.order) {
				break
			}
			events[j-1], events[j] = b, a
		}
	}
}

func appendVLQ(dst []byte, value int) []byte {
	if value < 0 {
		value = 0
	}
	var stack [5]byte
	n := 0
	for {
		stack[n] = byte(value & 0x7F)
		value >>= 7
		n++
		if value == 0 {
			break
		}
	}
	for i := n - 1; i >= 0; i-- {
		b := stack[i]
		if i > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}
