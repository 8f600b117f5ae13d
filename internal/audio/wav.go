package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// EncodeWAV wraps samples in a 16-bit mono PCM RIFF container.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	pcm := EncodeSlin16LE(samples)

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Clip is decoded WAV audio, downmixed to mono.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the clip duration.
func (c Clip) Seconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// LoadWAVFile reads a 16-bit PCM or 32-bit float WAV file.
func LoadWAVFile(path string) (Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer file.Close()
	return ReadWAV(file)
}

// ReadWAV decodes a RIFF/WAVE stream, walking chunks until the data chunk.
func ReadWAV(r io.Reader) (Clip, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return Clip{}, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("not a valid WAV file")
	}

	var (
		format, channels, bits uint16
		rate                   uint32
		haveFormat             bool
	)
	for {
		chunk := make([]byte, 8)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return Clip{}, fmt.Errorf("failed to find data chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return Clip{}, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if size < 16 {
				return Clip{}, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			rate = binary.LittleEndian.Uint32(body[4:8])
			bits = binary.LittleEndian.Uint16(body[14:16])
			haveFormat = true
		case "data":
			if !haveFormat {
				return Clip{}, fmt.Errorf("data chunk before fmt chunk")
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && err != io.ErrUnexpectedEOF {
				return Clip{}, fmt.Errorf("failed to read data chunk: %w", err)
			}
			samples, err := decodeInterleaved(data[:n], format, bits)
			if err != nil {
				return Clip{}, err
			}
			return Clip{Samples: downmix(samples, int(channels)), SampleRate: int(rate)}, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return Clip{}, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}

func decodeInterleaved(data []byte, format, bits uint16) ([]float32, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return DecodeSlin16LE(data[:len(data)-len(data)%2])
	case format == wavFormatFloat && bits == 32:
		return DecodeFloat32LE(data[:len(data)-len(data)%4])
	default:
		return nil, fmt.Errorf("unsupported WAV encoding: format=%d bits=%d", format, bits)
	}
}

func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// RMS returns the root mean square level of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
