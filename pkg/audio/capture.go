package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	// defaultSampleRate matches what the bundled recognizers expect.
	defaultSampleRate = 16000

	// framesPerBuffer is the portaudio read size: 1024 frames is 64 ms at
	// 16 kHz, comfortably below the segmenter's silence threshold.
	framesPerBuffer = 1024
)

// ErrNoInputDevices is returned by ListDevices when the host reports no
// usable capture devices.
var ErrNoInputDevices = errors.New("audio: no input devices detected")

// ListDevices initialises portaudio if needed and returns all devices with at
// least one input channel, in host order.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialise portaudio: %w", err)
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}

	var devices []Device
	for i, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		devices = append(devices, Device{
			Index:         i,
			Name:          info.Name,
			InputChannels: info.MaxInputChannels,
		})
	}
	if len(devices) == 0 {
		return nil, ErrNoInputDevices
	}
	return devices, nil
}

// CapturerOption is a functional option for configuring a [Capturer].
type CapturerOption func(*Capturer)

// WithSampleRate sets the capture sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) CapturerOption {
	return func(c *Capturer) { c.sampleRate = rate }
}

// WithSegmenterOptions forwards options to the phrase segmenter.
func WithSegmenterOptions(opts ...SegmenterOption) CapturerOption {
	return func(c *Capturer) { c.segOpts = append(c.segOpts, opts...) }
}

// Capturer captures mono PCM from one portaudio input device and emits
// phrase clips through a [Segmenter]. It implements [Source].
type Capturer struct {
	deviceIndex int
	sampleRate  int
	segOpts     []SegmenterOption

	stream *portaudio.Stream
	buf    []int16
	seg    *Segmenter
	clips  chan Clip

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
}

var _ Source = (*Capturer)(nil)

// NewCapturer opens the input device at deviceIndex (as reported by
// [ListDevices]) and prepares it for capture. Call Calibrate to set the
// silence gate from ambient noise, then Start to begin emitting clips.
func NewCapturer(deviceIndex int, opts ...CapturerOption) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialise portaudio: %w", err)
	}

	c := &Capturer{
		deviceIndex: deviceIndex,
		sampleRate:  defaultSampleRate,
		clips:       make(chan Clip, 16),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.seg = NewSegmenter(c.sampleRate, c.segOpts...)

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}
	if deviceIndex < 0 || deviceIndex >= len(infos) {
		return nil, fmt.Errorf("audio: device index %d out of range", deviceIndex)
	}
	info := infos[deviceIndex]
	if info.MaxInputChannels < 1 {
		return nil, fmt.Errorf("audio: device %q has no input channels", info.Name)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream for %q: %w", info.Name, err)
	}
	c.stream = stream
	c.buf = buf

	slog.Info("capture device opened", "device", info.Name, "sample_rate", c.sampleRate)
	return c, nil
}

// Calibrate listens for the given duration and sets the segmenter's noise
// floor slightly above the measured ambient RMS energy. The capturer must not
// have been started yet.
func (c *Capturer) Calibrate(d time.Duration) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("audio: calibrate must run before Start")
	}
	c.mu.Unlock()

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("audio: start stream for calibration: %w", err)
	}

	var (
		total  float64
		frames int
	)
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if err := c.stream.Read(); err != nil {
			_ = c.stream.Stop()
			return fmt.Errorf("audio: calibration read: %w", err)
		}
		total += RMS(c.buf)
		frames++
	}
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("audio: stop stream after calibration: %w", err)
	}

	if frames > 0 {
		// Gate 50% above ambient so breathing and room hum stay below it.
		floor := total / float64(frames) * 1.5
		if floor < defaultNoiseFloor {
			floor = defaultNoiseFloor
		}
		c.seg.SetNoiseFloor(floor)
		slog.Info("ambient noise calibrated", "frames", frames, "noise_floor", floor)
	}
	return nil
}

// Start begins the capture loop. Clips become available on [Capturer.Clips]
// until ctx is cancelled or Close is called.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("audio: capturer already started")
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("audio: start stream: %w", err)
	}

	go c.readLoop(ctx)
	return nil
}

// Clips returns the phrase stream.
func (c *Capturer) Clips() <-chan Clip { return c.clips }

// Close stops capture, closes the Clips channel, and releases the device.
func (c *Capturer) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		started := c.started
		c.mu.Unlock()
		if started {
			<-c.done
		}
		_ = c.stream.Close()
		close(c.clips)
	})
	return nil
}

func (c *Capturer) readLoop(ctx context.Context) {
	defer close(c.done)
	defer func() {
		_ = c.stream.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			if clip := c.seg.Flush(); !clip.Empty() {
				c.emit(clip)
			}
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			slog.Warn("audio read error, stopping capture", "err", err)
			if clip := c.seg.Flush(); !clip.Empty() {
				c.emit(clip)
			}
			return
		}

		frame := append([]int16(nil), c.buf...)
		if clip := c.seg.Feed(frame); !clip.Empty() {
			c.emit(clip)
		}
	}
}

// emit forwards a clip without blocking the device read loop; if the consumer
// is not keeping up the clip is dropped.
func (c *Capturer) emit(clip Clip) {
	select {
	case c.clips <- clip:
	default:
		slog.Warn("clip dropped, consumer too slow", "duration", clip.Duration())
	}
}
