package tts

import (
	"bytes"
	"encoding/binary"
)

// encodeWAV wraps mono little-endian PCM in a RIFF/WAVE header.
func encodeWAV(pcm []byte, sampleRate, bitsPerSample int) []byte {
	numChannels := 1
	dataSize := len(pcm)
	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	header := new(bytes.Buffer)
	binary.Write(header, binary.LittleEndian, []byte("RIFF"))
	binary.Write(header, binary.LittleEndian, uint32(36+dataSize))
	binary.Write(header, binary.LittleEndian, []byte("WAVE"))
	binary.Write(header, binary.LittleEndian, []byte("fmt "))
	binary.Write(header, binary.LittleEndian, uint32(16))
	binary.Write(header, binary.LittleEndian, uint16(1))
	binary.Write(header, binary.LittleEndian, uint16(numChannels))
	binary.Write(header, binary.LittleEndian, uint32(sampleRate))
	binary.Write(header, binary.LittleEndian, uint32(byteRate))
	binary.Write(header, binary.LittleEndian, uint16(blockAlign))
	binary.Write(header, binary.LittleEndian, uint16(bitsPerSample))
	binary.Write(header, binary.LittleEndian, []byte("data"))
	binary.Write(header, binary.LittleEndian, uint32(dataSize))

	return append(header.Bytes(), pcm...)
}

// wavDurationMs reads the byte rate from a canonical 44 byte header. Streamed
// WAV (eSpeak --stdout) carries a bogus data size, so the payload length is used.
func wavDurationMs(wav []byte) int {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	if byteRate == 0 {
		return 0
	}
	return int(int64(len(wav)-44) * 1000 / int64(byteRate))
}
