package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	gridlog "github.com/Jdcabreradev/gridclash/logger"
)

// cues plays short tones for claim outcomes. A machine without audio
// gets a silent cues value; the game runs the same.
type cues struct {
	enabled bool
	rate    beep.SampleRate
}

func newCues(enable bool, log *gridlog.Logger) *cues {
	if !enable {
		return &cues{}
	}
	rate := beep.SampleRate(44100)
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		// Non-fatal, the client can run without sound
		log.Logf("Audio", gridlog.WARNING, "Audio initialization failed: %v", err)
		return &cues{}
	}
	return &cues{enabled: true, rate: rate}
}

func (c *cues) tone(freq float64, d time.Duration) beep.Streamer {
	sine, err := generators.SineTone(c.rate, freq)
	if err != nil {
		return nil
	}
	return beep.Take(c.rate.N(d), sine)
}

func (c *cues) play(streamers ...beep.Streamer) {
	if !c.enabled {
		return
	}
	for _, s := range streamers {
		if s == nil {
			return
		}
	}
	speaker.Play(beep.Seq(streamers...))
}

func (c *cues) delivered() {
	c.play(c.tone(880, 50*time.Millisecond))
}

func (c *cues) lost() {
	c.play(c.tone(220, 90*time.Millisecond))
}

func (c *cues) gameOver(won bool) {
	if won {
		c.play(c.tone(660, 80*time.Millisecond), c.tone(880, 80*time.Millisecond), c.tone(1320, 160*time.Millisecond))
		return
	}
	c.play(c.tone(440, 120*time.Millisecond), c.tone(330, 200*time.Millisecond))
}

func (c *cues) close() {
	if c.enabled {
		speaker.Close()
	}
}
