// Package store keeps saved transcripts in a bounded, newest-first list
// persisted through the kv layer under a single key.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"meetscribe/kv"
	"meetscribe/log"
)

// Capacity bounds the list; saving the 101st transcript evicts the oldest.
const Capacity = 100

// StorageKey is the kv key holding the whole list; surfaces watching the
// kv change feed reload when it moves.
const StorageKey = "transcripts"

// ErrNotFound is returned for an id no stored transcript carries.
var ErrNotFound = errors.New("transcript not found")

// Transcript is one saved recording. Duration is whole seconds; zero is
// omitted from the wire form.
type Transcript struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	Text            string `json:"text"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Export is the portable snapshot of the whole list.
type Export struct {
	ExportedAt string       `json:"exportedAt"`
	Count      int          `json:"count"`
	Items      []ExportItem `json:"items"`
}

type ExportItem struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Text string `json:"text"`
}

// Notifier is told after every successful mutation so other surfaces can
// reload. A nil notifier is fine.
type Notifier interface {
	StoreChanged()
}

// Store reads and writes the transcript list. Safe for use from one
// goroutine; the session engine serializes access.
type Store struct {
	kv       kv.Store
	notifier Notifier
	now      func() time.Time
}

func New(kvStore kv.Store, notifier Notifier) *Store {
	return &Store{kv: kvStore, notifier: notifier, now: time.Now}
}

// NewID builds a capture-time id: millisecond timestamp plus a short random
// suffix so saves within the same millisecond stay distinct.
func (s *Store) NewID() string {
	suffix, err := gonanoid.New(6)
	if err != nil {
		suffix = fmt.Sprintf("%06d", s.now().Nanosecond()%1000000)
	}
	return fmt.Sprintf("%d-%s", s.now().UnixMilli(), suffix)
}

// Save inserts a new transcript at the head and evicts past Capacity.
func (s *Store) Save(text string, duration time.Duration) (*Transcript, error) {
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	t := Transcript{
		ID:              s.NewID(),
		Date:            s.now().Format(time.RFC3339),
		Text:            text,
		DurationSeconds: int(math.Round(duration.Seconds())),
	}
	list = append([]Transcript{t}, list...)
	if len(list) > Capacity {
		list = list[:Capacity]
	}
	if err := s.persist(list); err != nil {
		return nil, err
	}
	log.StoreMutation("save", t.ID, len(list))
	s.changed()
	return &t, nil
}

// Get returns the transcript with id, or ErrNotFound.
func (s *Store) Get(id string) (*Transcript, error) {
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, ErrNotFound
}

// Delete removes the transcript with id. A missing id is ErrNotFound and
// performs no write and no notification.
func (s *Store) Delete(id string) error {
	list, err := s.load()
	if err != nil {
		return err
	}
	kept := list[:0:0]
	for _, t := range list {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(list) {
		return ErrNotFound
	}
	if err := s.persist(kept); err != nil {
		return err
	}
	log.StoreMutation("delete", id, len(kept))
	s.changed()
	return nil
}

// List returns all transcripts, newest first.
func (s *Store) List() ([]Transcript, error) {
	return s.load()
}

// Search returns transcripts whose text contains query, case-insensitively,
// preserving newest-first order. An empty query returns the full list.
func (s *Store) Search(query string) ([]Transcript, error) {
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return list, nil
	}
	var hits []Transcript
	for _, t := range list {
		if strings.Contains(strings.ToLower(t.Text), query) {
			hits = append(hits, t)
		}
	}
	return hits, nil
}

// ExportAll snapshots the list for sharing outside the engine.
func (s *Store) ExportAll() (*Export, error) {
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	exp := &Export{
		ExportedAt: s.now().Format(time.RFC3339),
		Count:      len(list),
		Items:      make([]ExportItem, 0, len(list)),
	}
	for _, t := range list {
		exp.Items = append(exp.Items, ExportItem{ID: t.ID, Date: t.Date, Text: t.Text})
	}
	return exp, nil
}

func (s *Store) load() ([]Transcript, error) {
	data, err := s.kv.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load transcripts: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var list []Transcript
	if err := json.Unmarshal(data, &list); err != nil {
		// A corrupt list is unrecoverable; start over rather than wedge.
		log.Warnf("discarding corrupt transcript list: %v", err)
		return nil, nil
	}
	return list, nil
}

func (s *Store) persist(list []Transcript) error {
	if list == nil {
		list = []Transcript{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode transcripts: %w", err)
	}
	if err := s.kv.Set(StorageKey, data); err != nil {
		return fmt.Errorf("persist transcripts: %w", err)
	}
	return nil
}

func (s *Store) changed() {
	if s.notifier != nil {
		s.notifier.StoreChanged()
	}
}
