package capture

import (
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep/mp3"
)

// ClipDuration reports the playing time of a finalized mp3 clip.
func ClipDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len()), nil
}
