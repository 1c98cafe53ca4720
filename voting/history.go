// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-blocklattice
//
// go-blocklattice is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-blocklattice is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-blocklattice.  If not, see <https://www.gnu.org/licenses/>.

package voting

import (
	"github.com/algorand/go-deadlock"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/algorand/go-blocklattice/crypto"
)

type historyEntry struct {
	hash crypto.Digest
	vote *Vote
}

// History remembers the votes this node generated, keyed by block root, so a
// repeated request for the same root is answered with the same vote instead of
// a conflicting one. The least recently added roots are forgotten first.
type History struct {
	mu    deadlock.Mutex
	roots *simplelru.LRU[crypto.Digest, []historyEntry]
}

// MakeHistory creates a history holding votes for up to size roots.
func MakeHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	roots, err := simplelru.NewLRU[crypto.Digest, []historyEntry](size, nil)
	if err != nil {
		panic(err)
	}
	return &History{roots: roots}
}

// Add records vote as the vote for hash under root. Votes for a different
// hash of the same root, and earlier votes by the same account, are replaced.
func (h *History) Add(root, hash crypto.Digest, vote *Vote) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old, _ := h.roots.Peek(root)
	entries := make([]historyEntry, 0, len(old)+1)
	for _, e := range old {
		if e.hash == hash && e.vote.Account != vote.Account {
			entries = append(entries, e)
		}
	}
	entries = append(entries, historyEntry{hash: hash, vote: vote})
	h.roots.Add(root, entries)
}

// Votes returns every vote recorded for root.
func (h *History) Votes(root crypto.Digest) []*Vote {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, _ := h.roots.Peek(root)
	out := make([]*Vote, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.vote)
	}
	return out
}

// VotesFor returns the votes recorded for hash under root.
func (h *History) VotesFor(root, hash crypto.Digest) []*Vote {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, _ := h.roots.Peek(root)
	var out []*Vote
	for _, e := range entries {
		if e.hash == hash {
			out = append(out, e.vote)
		}
	}
	return out
}

// Exists reports whether any vote is recorded for root.
func (h *History) Exists(root crypto.Digest) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roots.Contains(root)
}

// Erase forgets every vote for root.
func (h *History) Erase(root crypto.Digest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots.Remove(root)
}

// Size returns the number of roots with recorded votes.
func (h *History) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roots.Len()
}
