package engine

import (
	"sync"

	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

// StatusRecord holds the advisory audio/video/name state for one side of the
// call. It is purely informational and never gates the media path.
type StatusRecord struct {
	mu sync.Mutex
	s  signal.Status
}

func NewStatusRecord(s signal.Status) *StatusRecord {
	return &StatusRecord{s: s}
}

func (r *StatusRecord) Get() signal.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

func (r *StatusRecord) Set(s signal.Status) {
	r.mu.Lock()
	r.s = s
	r.mu.Unlock()
}

func (r *StatusRecord) SetAudio(on bool) signal.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Audio = on
	return r.s
}

func (r *StatusRecord) SetVideo(on bool) signal.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Video = on
	return r.s
}

func (r *StatusRecord) SetName(name string) signal.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Name = name
	return r.s
}
