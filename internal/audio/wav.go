package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	waveFormatPCM       = 1
	waveFormatIEEEFloat = 3
)

// ErrUnsupportedWAV indicates a RIFF file the decoder cannot handle.
var ErrUnsupportedWAV = errors.New("unsupported wav file")

// DecodeWAV reads a RIFF/WAVE stream into a Buffer. 16-bit and 24-bit PCM and
// 32-bit float chunks are supported.
func DecodeWAV(r io.Reader) (*Buffer, error) {
	br := bufio.NewReader(r)

	var riff [12]byte
	if _, err := io.ReadFull(br, riff[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedWAV)
	}

	var (
		format        uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		haveFormat    bool
	)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(br, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: missing data chunk", ErrUnsupportedWAV)
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(br, fmtChunk); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(fmtChunk) < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			format = binary.LittleEndian.Uint16(fmtChunk[0:2])
			channels = binary.LittleEndian.Uint16(fmtChunk[2:4])
			sampleRate = binary.LittleEndian.Uint32(fmtChunk[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(fmtChunk[14:16])
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			data := make([]byte, chunkSize)
			if _, err := io.ReadFull(br, data); err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			return decodeSamples(data, format, channels, sampleRate, bitsPerSample)
		default:
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, br, skip); err != nil {
				return nil, fmt.Errorf("skip chunk %q: %w", chunkID, err)
			}
		}
	}
}

func decodeSamples(data []byte, format, channels uint16, sampleRate uint32, bits uint16) (*Buffer, error) {
	if channels == 0 {
		return nil, fmt.Errorf("%w: zero channels", ErrUnsupportedWAV)
	}

	buf := &Buffer{SampleRate: int(sampleRate), Channels: int(channels)}

	switch {
	case format == waveFormatPCM && bits == 16:
		count := len(data) / 2
		buf.Samples = make([]float64, count)
		for i := 0; i < count; i++ {
			v := int16(binary.LittleEndian.Uint16(data[i*2:]))
			buf.Samples[i] = float64(v) / 32768.0
		}
	case format == waveFormatPCM && bits == 24:
		count := len(data) / 3
		buf.Samples = make([]float64, count)
		for i := 0; i < count; i++ {
			raw := int32(data[i*3]) | int32(data[i*3+1])<<8 | int32(data[i*3+2])<<16
			if raw&0x800000 != 0 {
				raw |= ^int32(0xFFFFFF)
			}
			buf.Samples[i] = float64(raw) / 8388608.0
		}
	case format == waveFormatIEEEFloat && bits == 32:
		count := len(data) / 4
		buf.Samples = make([]float64, count)
		for i := 0; i < count; i++ {
			bitsVal := binary.LittleEndian.Uint32(data[i*4:])
			buf.Samples[i] = float64(math.Float32frombits(bitsVal))
		}
	default:
		return nil, fmt.Errorf("%w: format %d with %d bits", ErrUnsupportedWAV, format, bits)
	}

	return buf, nil
}

// EncodeWAV writes the buffer as a 16-bit PCM RIFF/WAVE stream.
func EncodeWAV(w io.Writer, b *Buffer) error {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return errors.New("encode wav: invalid buffer")
	}

	dataSize := len(b.Samples) * 2
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], waveFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(b.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(b.SampleRate))
	byteRate := b.SampleRate * b.Channels * 2
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(b.Channels*2))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	out := make([]byte, dataSize)
	for i, s := range b.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(s * 32767))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// ReadWAVFile decodes a WAV file from disk.
func ReadWAVFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WriteWAVFile encodes the buffer to disk as 16-bit PCM.
func WriteWAVFile(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := EncodeWAV(f, b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
