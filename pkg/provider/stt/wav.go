package stt

import "encoding/binary"

// bitsPerSample is fixed at 16 for the PCM accepted by [ContentTypePCM].
const bitsPerSample = 16

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a RIFF/WAV
// container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// AsFile returns audio as an uploadable file: raw PCM is wrapped in WAV,
// anything else is passed through. The returned name carries an extension
// matching the content type so multipart backends can sniff the format.
func AsFile(a Audio) (data []byte, filename, contentType string) {
	if a.ContentType == ContentTypePCM {
		return EncodeWAV(a.Data, a.SampleRate, a.Channels), "audio.wav", "audio/wav"
	}
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return a.Data, "audio" + extensionFor(ct), ct
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/flac":
		return ".flac"
	default:
		return ".bin"
	}
}
