package feedback

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"chronogrid.ai/internal/sim/timeline"
)

const sampleRate = beep.SampleRate(44100)

// Player plays a finite streamer. The speaker implements it in production;
// tests substitute a recorder.
type Player interface {
	Play(s beep.Streamer)
}

type speakerPlayer struct{}

func (speakerPlayer) Play(s beep.Streamer) { speaker.Play(s) }

// InitSpeaker opens the audio device. Callers treat failure as non-fatal and
// run without Sound.
func InitSpeaker() (Player, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, err
	}
	return speakerPlayer{}, nil
}

// Sound turns engine notifications into short tones. It implements engine.Listener.
type Sound struct {
	mu     sync.Mutex
	player Player
	muted  bool
}

func NewSound(p Player) *Sound {
	return &Sound{player: p}
}

func (s *Sound) SetMuted(m bool) {
	s.mu.Lock()
	s.muted = m
	s.mu.Unlock()
}

func (s *Sound) OnAppend(ev timeline.Event) {
	switch p := ev.Payload.(type) {
	case timeline.Interact:
		s.play(tone(520+60*float64(p.Next), 45*time.Millisecond))
	case timeline.Trigger:
		s.play(tone(330+80*float64(p.Next), 30*time.Millisecond))
	}
}

func (s *Sound) OnSeek(_, _ int, reversed bool) {
	if reversed {
		s.play(beep.Seq(
			tone(392, 40*time.Millisecond),
			tone(294, 60*time.Millisecond),
		))
	}
}

// OnComplete plays a rising arpeggio with one note per star.
func (s *Sound) OnComplete(_ string, stars, _ int) {
	notes := []float64{523.25, 659.25, 783.99}
	if stars < 1 {
		stars = 1
	}
	if stars > len(notes) {
		stars = len(notes)
	}
	var parts []beep.Streamer
	for _, f := range notes[:stars] {
		parts = append(parts, tone(f, 120*time.Millisecond), beep.Silence(sampleRate.N(30*time.Millisecond)))
	}
	s.play(beep.Seq(parts...))
}

func (s *Sound) play(st beep.Streamer) {
	if st == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted || s.player == nil {
		return
	}
	s.player.Play(st)
}

// tone is a quiet sine of fixed length. It returns nil for frequencies the
// sample rate cannot carry.
func tone(freq float64, d time.Duration) beep.Streamer {
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return nil
	}
	return beep.Take(sampleRate.N(d), &effects.Volume{
		Streamer: sine,
		Base:     2,
		Volume:   -3,
	})
}
