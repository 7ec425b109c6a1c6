package ai

import (
	"context"
	"encoding/base64"
	"encoding/binary"
)

// Speech synthesis output format, fixed by the provider.
const (
	SpeechSampleRate = 24000
	speechChannels   = 1
	speechBitDepth   = 16
)

// DefaultVoice is used when the caller does not pick one.
const DefaultVoice = "Kore"

// SynthesizeSpeech renders text as raw PCM audio: 24kHz, mono, 16-bit
// little-endian samples.
func (c *Client) SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	req := generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: text}}}},
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{
				VoiceConfig: &VoiceConfig{
					PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}
	resp, err := c.generateRetry(ctx, c.ttsModel, req)
	if err != nil {
		return nil, err
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, newError(KindParse, "decode audio payload: %v", err)
		}
		return pcm, nil
	}
	return nil, newError(KindUnknown, "response carried no audio part")
}

// WAVFromPCM wraps raw provider PCM into a playable WAV container so the
// artifact can be stored and served directly.
func WAVFromPCM(pcm []byte) []byte {
	const headerLen = 44
	byteRate := SpeechSampleRate * speechChannels * speechBitDepth / 8
	blockAlign := speechChannels * speechBitDepth / 8

	buf := make([]byte, headerLen+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], speechChannels)
	binary.LittleEndian.PutUint32(buf[24:28], SpeechSampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], speechBitDepth)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[headerLen:], pcm)
	return buf
}
