package voice

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Source is the local audio input. It is acquired once when voice
// turns on and shared read-only by every peer link; the single on/off
// toggle owns its lifetime, not the individual links.
type Source interface {
	// Track is the local track attached to peer links.
	Track() webrtc.TrackLocal
	// Level is a rough 0..1 activity level for the mic indicator.
	Level() float64
	Close() error
}

// SourceFactory acquires the audio source. Acquisition failure is the
// user-visible "microphone unavailable" condition: voice stays off and
// nothing else in the session is affected.
type SourceFactory func() (Source, error)

const pageInterval = 20 * time.Millisecond

// FileSource streams an Ogg/Opus file into a local sample track,
// looping at end of file. It stands in for microphone capture in the
// headless client.
type FileSource struct {
	path  string
	track *webrtc.TrackLocalStaticSample
	meter *meter
	done  chan struct{}
	once  sync.Once
}

// NewFileSource opens the file and starts pumping samples.
func NewFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}

	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read ogg header: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "cinemate",
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("create local track: %w", err)
	}

	s := &FileSource{
		path:  path,
		track: track,
		meter: &meter{},
		done:  make(chan struct{}),
	}
	go s.pump(file, ogg)
	return s, nil
}

func (s *FileSource) pump(file *os.File, ogg *oggreader.OggReader) {
	defer file.Close()

	ticker := time.NewTicker(pageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		page, _, err := ogg.ParseNextPage()
		if err != nil {
			// Loop: rewind and restart the stream.
			if _, err := file.Seek(0, 0); err != nil {
				return
			}
			if ogg, _, err = oggreader.NewWith(file); err != nil {
				return
			}
			continue
		}

		s.meter.feed(page)
		if err := s.track.WriteSample(media.Sample{Data: page, Duration: pageInterval}); err != nil {
			return
		}
	}
}

// Track returns the shared local track.
func (s *FileSource) Track() webrtc.TrackLocal {
	return s.track
}

// Level returns the current activity level.
func (s *FileSource) Level() float64 {
	return s.meter.level()
}

// Close stops the pump; level monitoring stops with it.
func (s *FileSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// meter keeps a smoothed activity level. It works on the encoded
// payload bytes, which is a coarse stand-in for PCM loudness but
// enough to drive a talking indicator.
type meter struct {
	mu  sync.Mutex
	val float64
}

func (m *meter) feed(buf []byte) {
	if len(buf) == 0 {
		return
	}
	var sum float64
	for _, b := range buf {
		d := float64(int(b) - 128)
		sum += d * d
	}
	rms := math.Sqrt(sum/float64(len(buf))) / 128

	m.mu.Lock()
	m.val = 0.8*m.val + 0.2*rms
	m.mu.Unlock()
}

func (m *meter) level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val
}
