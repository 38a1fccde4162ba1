// Package model defines the domain types used across the application.
package model

import (
	"slices"
	"time"
)

// Post is a single entry produced by a feed. Only its ID outlives a polling cycle.
type Post struct {
	ID        string
	Feed      string
	Title     string
	Link      string
	Summary   string // plain text
	Published *time.Time
}

// Subscriber is a Telegram chat that receives notifications.
type Subscriber = int64

// State is the persisted form of the bot state.
type State struct {
	Feeds       []string            `json:"feeds"`
	Seen        map[string][]string `json:"seen"`
	Subscribers []Subscriber        `json:"subscribers"`
}

// NewState returns an empty state with the given feeds registered and not yet seeded.
func NewState(feeds ...string) State {
	return State{
		Feeds:       append([]string{}, feeds...),
		Seen:        map[string][]string{},
		Subscribers: []Subscriber{},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Feeds:       append([]string{}, s.Feeds...),
		Seen:        make(map[string][]string, len(s.Seen)),
		Subscribers: append([]Subscriber{}, s.Subscribers...),
	}
	for feed, ids := range s.Seen {
		out.Seen[feed] = append([]string{}, ids...)
	}
	return out
}

// Normalize fills nil collections and sorts seen IDs so that equal states compare equal.
func (s *State) Normalize() {
	if s.Feeds == nil {
		s.Feeds = []string{}
	}
	if s.Seen == nil {
		s.Seen = map[string][]string{}
	}
	if s.Subscribers == nil {
		s.Subscribers = []Subscriber{}
	}
	for feed, ids := range s.Seen {
		if ids == nil {
			ids = []string{}
		}
		slices.Sort(ids)
		s.Seen[feed] = slices.Compact(ids)
	}
}
