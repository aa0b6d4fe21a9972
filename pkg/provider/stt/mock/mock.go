// Package mock provides test doubles for the stt package interfaces.
//
// A Decoder consumes one Step per AcceptWaveform call. Steps let a test say
// "the third chunk finalizes a segment with this text" without real audio:
//
//	dec := &mock.Decoder{Steps: []mock.Step{{}, {}, {Final: true, Text: "book a meeting"}}}
//	p := &mock.Provider{Decoder: dec}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/provider/stt"
)

var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Decoder  = (*Decoder)(nil)
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Decoder is returned by NewDecoder. When nil a fresh empty Decoder is returned.
	Decoder *Decoder

	// NewDecoderErr, if non-nil, is returned from NewDecoder.
	NewDecoderErr error

	// Configs records every StreamConfig passed to NewDecoder.
	Configs []stt.StreamConfig
}

// NewDecoder implements stt.Provider.
func (p *Provider) NewDecoder(_ context.Context, cfg stt.StreamConfig) (stt.Decoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.NewDecoderErr != nil {
		return nil, p.NewDecoderErr
	}
	if p.Decoder == nil {
		return &Decoder{}, nil
	}
	return p.Decoder, nil
}

// Step scripts the outcome of one AcceptWaveform call.
type Step struct {
	Final bool
	Text  string
	Err   error
}

// Decoder is a scripted stt.Decoder. Once Steps are exhausted every call
// returns (false, nil).
type Decoder struct {
	mu sync.Mutex

	Steps []Step

	chunks [][]byte
	result string
	closed bool
}

// AcceptWaveform implements stt.Decoder.
func (d *Decoder) AcceptWaveform(_ context.Context, chunk []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, stt.ErrClosed
	}
	d.chunks = append(d.chunks, chunk)
	if len(d.Steps) == 0 {
		return false, nil
	}
	step := d.Steps[0]
	d.Steps = d.Steps[1:]
	if step.Err != nil {
		d.result = ""
		return false, step.Err
	}
	if step.Final {
		d.result = step.Text
	}
	return step.Final, nil
}

// Result implements stt.Decoder.
func (d *Decoder) Result() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Close implements stt.Decoder.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Chunks returns every chunk passed to AcceptWaveform.
func (d *Decoder) Chunks() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.chunks...)
}

// Closed reports whether Close was called.
func (d *Decoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
