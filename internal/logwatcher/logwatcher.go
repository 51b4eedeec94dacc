// Package logwatcher follows the command log of a running installation.
package logwatcher

import (
	"io"
	"strings"
	"sync"

	"github.com/hpcloud/tail"
)

// Follower keeps the most recent line appended to a file.
type Follower struct {
	t      *tail.Tail
	ignore func(string) bool

	mu     sync.Mutex
	latest string
	err    error
	done   chan struct{}
}

// Follow starts tailing path from its current end. Lines for which ignore
// returns true are not recorded; ignore may be nil.
func Follow(path string, ignore func(line string) bool) (*Follower, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return nil, err
	}

	f := &Follower{t: t, ignore: ignore, done: make(chan struct{})}
	go f.loop()
	return f, nil
}

func (f *Follower) loop() {
	defer close(f.done)
	for line := range f.t.Lines {
		if line.Err != nil {
			f.mu.Lock()
			f.err = line.Err
			f.mu.Unlock()
			continue
		}
		text := strings.TrimSpace(line.Text)
		if text == "" || (f.ignore != nil && f.ignore(text)) {
			continue
		}
		f.mu.Lock()
		f.latest = text
		f.mu.Unlock()
	}
}

// Latest returns the last recorded line, or "" if none has arrived yet.
func (f *Follower) Latest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

// Err returns the last read error reported by the tailer.
func (f *Follower) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Stop ends the tail and waits for the reader goroutine to exit.
func (f *Follower) Stop() error {
	err := f.t.Stop()
	f.t.Cleanup()
	<-f.done
	return err
}
