package live

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
	channels      = 1
)

// wavFile streams 16-bit mono PCM into a RIFF/WAV file. The header sizes are
// written on Close.
type wavFile struct {
	f          *os.File
	path       string
	sampleRate int
	dataBytes  int64
}

// createWAV creates path, and its directory if needed, with a provisional
// header.
func createWAV(path string, sampleRate int) (*wavFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("live: create recordings dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("live: create wav: %w", err)
	}
	w := &wavFile{f: f, path: path, sampleRate: sampleRate}
	if _, err := f.Write(wavHeader(sampleRate, 0)); err != nil {
		f.Close()
		return nil, fmt.Errorf("live: write wav header: %w", err)
	}
	return w, nil
}

// Write appends PCM bytes.
func (w *wavFile) Write(pcm []byte) (int, error) {
	n, err := w.f.Write(pcm)
	w.dataBytes += int64(n)
	return n, err
}

// Duration is the length of the audio written so far.
func (w *wavFile) Duration() time.Duration {
	bytesPerSecond := int64(w.sampleRate * channels * bitsPerSample / 8)
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(w.dataBytes * int64(time.Second) / bytesPerSecond)
}

// Close rewrites the header with the final sizes and closes the file.
func (w *wavFile) Close() error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("live: finalise wav: %w", err)
	}
	if _, err := w.f.Write(wavHeader(w.sampleRate, w.dataBytes)); err != nil {
		w.f.Close()
		return fmt.Errorf("live: finalise wav: %w", err)
	}
	return w.f.Close()
}

// wavHeader returns the 44-byte PCM header for dataSize bytes of audio.
func wavHeader(sampleRate int, dataSize int64) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, wavHeaderSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	return buf
}
