// Package handshake implements the one-time playback-device selection
// exchange between the parent capture loop and the search worker.
//
// The protocol is small and strictly alternating. The parent opens with a
// [KindListRequest]; the worker answers with a [KindStatus] message carrying
// one of three values: [StatusPrompt] (a selection is needed — the parent
// replies with a [KindSelection] and waits for the next status),
// [StatusError] (no usable playback target; fatal), or [StatusSet] (a target
// is selected; the pipeline may start). After StatusSet or StatusError the
// channel carries no further traffic; whichever side exits first closes its
// endpoint and the peer observes [ErrClosed] instead of crashing.
package handshake

import "errors"

// ErrClosed is returned by Send and Recv once either endpoint has been
// closed. Callers treat it as an immediate stop condition.
var ErrClosed = errors.New("handshake: channel closed")

// Kind discriminates the three message types on the channel.
type Kind int

const (
	// KindListRequest asks the worker to enumerate playback targets.
	KindListRequest Kind = iota

	// KindStatus reports the worker's selection state.
	KindStatus

	// KindSelection carries the parent's textual device choice.
	KindSelection
)

// Status is the worker's three-valued selection state.
type Status int

const (
	// StatusPrompt means a device list is attached and a selection is needed.
	StatusPrompt Status = iota

	// StatusSet means a playback target has been selected.
	StatusSet

	// StatusError means no usable playback target exists; the run cannot
	// proceed.
	StatusError
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusPrompt:
		return "PROMPT"
	case StatusSet:
		return "SET"
	case StatusError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Message is one protocol message. Exactly the fields implied by Kind are
// meaningful.
type Message struct {
	Kind Kind

	// Status accompanies KindStatus.
	Status Status

	// Devices lists the selectable playback targets on a StatusPrompt
	// message, formatted for display.
	Devices []string

	// Selection carries the parent's choice on a KindSelection message.
	Selection string
}

// Endpoint is one end of the duplex handshake channel. Send and Recv each
// block until the peer is ready; both return [ErrClosed] once either side
// has closed. An Endpoint is used strictly sequentially — the protocol has
// no concurrent senders.
type Endpoint struct {
	send chan<- Message
	recv <-chan Message

	ownDone  chan struct{}
	peerDone chan struct{}
	close    func()
}

// NewPipe creates a connected pair of endpoints, one for the parent and one
// for the worker.
func NewPipe() (parent, worker *Endpoint) {
	toWorker := make(chan Message)
	toParent := make(chan Message)
	parentDone := make(chan struct{})
	workerDone := make(chan struct{})

	parent = &Endpoint{
		send:     toWorker,
		recv:     toParent,
		ownDone:  parentDone,
		peerDone: workerDone,
	}
	parent.close = closeOnce(parentDone)

	worker = &Endpoint{
		send:     toParent,
		recv:     toWorker,
		ownDone:  workerDone,
		peerDone: parentDone,
	}
	worker.close = closeOnce(workerDone)
	return parent, worker
}

func closeOnce(ch chan struct{}) func() {
	var done bool
	return func() {
		if !done {
			done = true
			close(ch)
		}
	}
}

// Send delivers msg to the peer, blocking until the peer receives it.
// Returns ErrClosed if either endpoint has been closed.
func (e *Endpoint) Send(msg Message) error {
	select {
	case <-e.ownDone:
		return ErrClosed
	case <-e.peerDone:
		return ErrClosed
	default:
	}
	select {
	case e.send <- msg:
		return nil
	case <-e.ownDone:
		return ErrClosed
	case <-e.peerDone:
		return ErrClosed
	}
}

// Recv blocks until a message arrives from the peer. Returns ErrClosed if
// either endpoint has been closed.
func (e *Endpoint) Recv() (Message, error) {
	select {
	case msg := <-e.recv:
		return msg, nil
	case <-e.ownDone:
		return Message{}, ErrClosed
	case <-e.peerDone:
		return Message{}, ErrClosed
	}
}

// Close shuts this endpoint down. Any blocked or future Send/Recv on either
// side returns ErrClosed. Safe to call multiple times; Close is not safe for
// use concurrently with itself but may race freely with the peer's calls.
func (e *Endpoint) Close() error {
	e.close()
	return nil
}
