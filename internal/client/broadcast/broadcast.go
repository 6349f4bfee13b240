// Package broadcast lets every station process on a device learn about
// local-store changes made by any other process, with no shared memory
// and no blocking.
//
// Transport is a spool directory shared by all processes: Post writes
// one JSON message file, and every other process's filesystem watcher
// picks it up. Delivery is best effort; the store remains the source of
// truth and a received message is only a hint to re-read it.
package broadcast

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Type discriminates the closed set of broadcast messages.
type Type string

const (
	// TypeInterviewSynced announces that an offline-created interview
	// was assigned its permanent server id. Receivers must remap every
	// reference from TempID to RealID.
	TypeInterviewSynced Type = "INTERVIEW_SYNCED"

	// TypeInterviewUpdated announces that local state for an interview
	// changed. Receivers should re-read it from the store.
	TypeInterviewUpdated Type = "INTERVIEW_UPDATED"

	// TypeProtocolCached announces that a protocol finished caching for
	// offline use.
	TypeProtocolCached Type = "PROTOCOL_CACHED"
)

// Message is the tagged union carried on the wire. Receivers ignore
// fields they do not know, so senders may add fields over time.
type Message struct {
	Type   Type   `json:"type"`
	TempID string `json:"tempId,omitempty"`
	RealID string `json:"realId,omitempty"`
	ID     string `json:"id,omitempty"`
	Sender string `json:"sender,omitempty"`
}

// InterviewSynced builds an INTERVIEW_SYNCED message.
func InterviewSynced(tempID, realID string) Message {
	return Message{Type: TypeInterviewSynced, TempID: tempID, RealID: realID}
}

// InterviewUpdated builds an INTERVIEW_UPDATED message.
func InterviewUpdated(id string) Message {
	return Message{Type: TypeInterviewUpdated, ID: id}
}

// ProtocolCached builds a PROTOCOL_CACHED message.
func ProtocolCached(id string) Message {
	return Message{Type: TypeProtocolCached, ID: id}
}

// staleAfter is how long a spool file may linger before the next
// watcher creation sweeps it.
const staleAfter = time.Minute

// Coordinator is the per-process broadcast handle. One watcher is
// created lazily and shared by every Post/Subscribe call; Close tears
// it down and the next use transparently recreates it.
//
// A process never observes its own posts: messages carry the sender id
// and the dispatch loop drops matches.
type Coordinator struct {
	dir      string
	senderID string
	log      *logrus.Entry

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	subs    map[int]func(Message)
	nextSub int
}

// New creates a coordinator over the given spool directory. No watcher
// is created until first use.
func New(dir string) *Coordinator {
	return &Coordinator{
		dir:      dir,
		senderID: uuid.NewString(),
		log:      logrus.WithField("component", "broadcast"),
		subs:     make(map[int]func(Message)),
	}
}

// ensureLocked lazily creates the shared watcher. Callers hold c.mu.
func (c *Coordinator) ensureLocked() error {
	if c.watcher != nil {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}
	c.sweepStale()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	c.watcher = watcher
	c.done = make(chan struct{})
	go c.loop(watcher, c.done)

	return nil
}

// sweepStale removes spool files nobody will read anymore.
func (c *Coordinator) sweepStale() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-staleAfter)
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(c.dir, entry.Name()))
	}
}

func (c *Coordinator) loop(watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Messages are written to a temp name and renamed into
			// place, so Create fires only for complete files.
			if !event.Has(fsnotify.Create) || !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			c.dispatchFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.log.WithError(err).Debug("watcher error")
		}
	}
}

func (c *Coordinator) dispatchFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.WithError(err).Debug("failed to read broadcast message")
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.WithError(err).Debug("failed to decode broadcast message")
		return
	}
	if msg.Sender == c.senderID {
		return
	}

	c.mu.Lock()
	listeners := make([]func(Message), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

// Post sends a message to every other process, best effort. Broadcast
// is an optimization, not a correctness requirement: if the spool or
// watcher is unusable, Post logs and returns without error.
func (c *Coordinator) Post(msg Message) {
	c.mu.Lock()
	err := c.ensureLocked()
	c.mu.Unlock()
	if err != nil {
		c.log.WithError(err).Debug("broadcast unavailable, dropping message")
		return
	}

	msg.Sender = c.senderID
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.WithError(err).Debug("failed to encode broadcast message")
		return
	}

	// Write-then-rename so receivers never observe a partial file.
	name := uuid.NewString()
	tmp := filepath.Join(c.dir, name+".tmp")
	final := filepath.Join(c.dir, name+".json")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.log.WithError(err).Debug("failed to write broadcast message")
		return
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		c.log.WithError(err).Debug("failed to publish broadcast message")
	}
}

// Subscribe registers a listener for messages from other processes and
// returns its cleanup function. Subscribers never see this process's
// own posts, and independent subscribers do not interfere with each
// other's lifecycle.
func (c *Coordinator) Subscribe(listener func(Message)) (unsubscribe func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLocked(); err != nil {
		return nil, err
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = listener

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}, nil
}

// Close tears down the watcher. The coordinator stays usable: the next
// Post or Subscribe recreates the channel.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher == nil {
		return
	}
	close(c.done)
	if err := c.watcher.Close(); err != nil {
		c.log.WithError(err).Debug("failed to close watcher")
	}
	c.watcher = nil
	c.done = nil
}
