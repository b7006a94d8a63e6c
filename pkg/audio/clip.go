// Package audio provides microphone capture and phrase segmentation for the
// Earworm listening pipeline.
//
// The central abstraction is [Source]: a stream of [Clip] values, each holding
// one captured spoken phrase as 16-bit mono PCM. The portaudio-backed
// [Capturer] is the production implementation; tests use the scripted source
// in the mock subpackage.
package audio

import (
	"math"
	"time"
)

// Clip is a single captured audio phrase: 16-bit signed mono PCM samples.
type Clip struct {
	// PCM holds the raw samples.
	PCM []int16

	// SampleRate is the sample rate in Hz the clip was captured at.
	SampleRate int
}

// Duration returns the play length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.PCM)) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool { return len(c.PCM) == 0 }

// Device describes a capture device offered by the host.
type Device struct {
	// Index is the host API device index used to open the device.
	Index int

	// Name is the human-readable device name.
	Name string

	// InputChannels is the maximum number of input channels the device offers.
	// Devices with zero input channels cannot be used for capture.
	InputChannels int
}

// RMS computes the root-mean-square energy of the samples in 16-bit PCM
// units. The maximum possible value is 32 767; ambient room noise is
// typically well below 500.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Float32 converts the clip's samples to float32 in the range [-1, 1], the
// format expected by whisper.cpp inference.
func (c Clip) Float32() []float32 {
	out := make([]float32, len(c.PCM))
	for i, s := range c.PCM {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Bytes returns the clip's samples as little-endian 16-bit PCM bytes, the
// format expected by vosk-server and most wire protocols.
func (c Clip) Bytes() []byte {
	out := make([]byte, len(c.PCM)*2)
	for i, s := range c.PCM {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
