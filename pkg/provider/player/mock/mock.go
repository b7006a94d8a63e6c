// Package mock provides a scriptable playback service for tests.
package mock

import (
	"context"
	"sync"

	"github.com/earworm-audio/earworm/pkg/provider/player"
)

// Player is a scripted implementation of [player.Provider]. Zero value:
// no devices, every track lookup misses, playback succeeds, verification
// reports false.
type Player struct {
	mu sync.Mutex

	DevicesResult []player.Device
	DevicesErr    error

	Tracks       map[string]*player.Track
	FindErr      error
	StartErr     error
	VerifyResult bool
	VerifyErr    error

	SelectedDevice string
	FindCalls      int
	StartCalls     int
	VerifyCalls    int
}

var _ player.Provider = (*Player)(nil)

// New creates an empty Player.
func New() *Player {
	return &Player{Tracks: make(map[string]*player.Track)}
}

func (p *Player) Devices(_ context.Context) ([]player.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DevicesResult, p.DevicesErr
}

func (p *Player) SetDevice(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SelectedDevice = id
}

func (p *Player) FindTrack(_ context.Context, title string) (*player.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FindCalls++
	if p.FindErr != nil {
		return nil, p.FindErr
	}
	return p.Tracks[title], nil
}

func (p *Player) StartPlayback(_ context.Context, _ *player.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls++
	return p.StartErr
}

func (p *Player) VerifyPlaying(_ context.Context, _ *player.Track) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VerifyCalls++
	return p.VerifyResult, p.VerifyErr
}
