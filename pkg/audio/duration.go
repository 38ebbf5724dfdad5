package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// Duration probes the playing time of an in-memory mp3 payload without
// sending it to the speaker.
func Duration(buf []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(buf))
	if err != nil {
		return 0, fmt.Errorf("audio: couldn't decode buffer: %w", err)
	}
	n := decoder.Length()
	if n <= 0 {
		return 0, errors.New("audio: unknown buffer length")
	}
	// 2 channels, 2 bytes per sample
	samples := n / 4
	return time.Duration(samples) * time.Second / time.Duration(decoder.SampleRate()), nil
}
