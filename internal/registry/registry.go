// Package registry holds the monitored feeds and subscribed chats.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"rss_watch/internal/model"
)

// ErrInvalidURL is returned by NormalizeURL for anything that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid feed URL")

// NormalizeURL returns the canonical form of a feed URL used as its key:
// surrounding spaces trimmed, scheme and host lowercased, fragment dropped.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// Key returns the normalized form of raw, or raw trimmed if it cannot be normalized.
func Key(raw string) string {
	if k, err := NormalizeURL(raw); err == nil {
		return k
	}
	return strings.TrimSpace(raw)
}

// Registry is an insertion-ordered set of feeds plus a set of subscribers.
// It is not safe for concurrent use.
type Registry struct {
	feeds     []string
	feedIndex map[string]struct{}
	subs      []model.Subscriber
	subIndex  map[model.Subscriber]struct{}
}

// New returns a Registry populated with feeds and subscribers, dropping duplicates.
func New(feeds []string, subscribers []model.Subscriber) *Registry {
	r := &Registry{
		feedIndex: make(map[string]struct{}),
		subIndex:  make(map[model.Subscriber]struct{}),
	}
	for _, f := range feeds {
		r.AddFeed(f)
	}
	for _, s := range subscribers {
		r.AddSubscriber(s)
	}
	return r
}

// AddFeed adds a feed and reports whether it was not already present.
func (r *Registry) AddFeed(url string) bool {
	k := Key(url)
	if _, ok := r.feedIndex[k]; ok {
		return false
	}
	r.feedIndex[k] = struct{}{}
	r.feeds = append(r.feeds, k)
	return true
}

// RemoveFeed removes a feed and reports whether it was present.
func (r *Registry) RemoveFeed(url string) bool {
	k := Key(url)
	if _, ok := r.feedIndex[k]; !ok {
		return false
	}
	delete(r.feedIndex, k)
	for i, f := range r.feeds {
		if f == k {
			r.feeds = append(r.feeds[:i], r.feeds[i+1:]...)
			break
		}
	}
	return true
}

// HasFeed reports whether url is registered.
func (r *Registry) HasFeed(url string) bool {
	_, ok := r.feedIndex[Key(url)]
	return ok
}

// Feeds returns the registered feeds in insertion order.
func (r *Registry) Feeds() []string {
	return append([]string{}, r.feeds...)
}

// AddSubscriber registers a chat and reports whether it was new.
func (r *Registry) AddSubscriber(id model.Subscriber) bool {
	if _, ok := r.subIndex[id]; ok {
		return false
	}
	r.subIndex[id] = struct{}{}
	r.subs = append(r.subs, id)
	return true
}

// RemoveSubscriber unregisters a chat and reports whether it was present.
func (r *Registry) RemoveSubscriber(id model.Subscriber) bool {
	if _, ok := r.subIndex[id]; !ok {
		return false
	}
	delete(r.subIndex, id)
	for i, s := range r.subs {
		if s == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			break
		}
	}
	return true
}

// Subscribers returns the registered chats in the order they subscribed.
func (r *Registry) Subscribers() []model.Subscriber {
	return append([]model.Subscriber{}, r.subs...)
}
