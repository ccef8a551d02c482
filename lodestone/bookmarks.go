/*
 * Copyright (c) "Lodestone"
 * Lodestone Database Systems
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lodestone

import (
	"sync"

	"github.com/benbjohnson/immutable"
)

// Bookmarks is an immutable, order-preserving set of opaque
// causal-consistency tokens. The zero value is the empty set.
type Bookmarks struct {
	values *immutable.List[string]
}

// BookmarksFrom builds a bookmark set from raw token values, preserving
// first-occurrence order, dropping duplicates and empty strings.
func BookmarksFrom(values ...string) Bookmarks {
	builder := immutable.NewListBuilder[string]()
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if len(value) == 0 {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		builder.Append(value)
	}
	return Bookmarks{values: builder.List()}
}

// EmptyBookmarks returns the empty set.
func EmptyBookmarks() Bookmarks {
	return Bookmarks{}
}

func (b Bookmarks) IsEmpty() bool {
	return b.values == nil || b.values.Len() == 0
}

func (b Bookmarks) Len() int {
	if b.values == nil {
		return 0
	}
	return b.values.Len()
}

// Values returns the tokens in insertion order.
func (b Bookmarks) Values() []string {
	if b.values == nil {
		return nil
	}
	result := make([]string, 0, b.values.Len())
	itr := b.values.Iterator()
	for !itr.Done() {
		_, value := itr.Next()
		result = append(result, value)
	}
	return result
}

// LastBookmark returns the last token, empty string when the set is empty.
func (b Bookmarks) LastBookmark() string {
	if b.IsEmpty() {
		return ""
	}
	return b.values.Get(b.values.Len() - 1)
}

// Union returns the order-preserving union of both sets, b's tokens first.
func (b Bookmarks) Union(other Bookmarks) Bookmarks {
	if other.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return other
	}
	return BookmarksFrom(append(b.Values(), other.Values()...)...)
}

// CombineBookmarks folds Union over all given sets, in order.
func CombineBookmarks(sets ...Bookmarks) Bookmarks {
	result := EmptyBookmarks()
	for _, set := range sets {
		result = result.Union(set)
	}
	return result
}

// bookmarksHolder carries a session's current bookmarks across its
// successive transactions. Every successful commit replaces the held set
// with the server-provided one.
type bookmarksHolder struct {
	mut       sync.Mutex
	bookmarks Bookmarks
}

func newBookmarksHolder(bookmarks Bookmarks) *bookmarksHolder {
	return &bookmarksHolder{bookmarks: bookmarks}
}

func (h *bookmarksHolder) current() Bookmarks {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.bookmarks
}

func (h *bookmarksHolder) currentRaw() []string {
	return h.current().Values()
}

func (h *bookmarksHolder) lastBookmark() string {
	return h.current().LastBookmark()
}

func (h *bookmarksHolder) replace(newBookmark string) {
	if len(newBookmark) == 0 {
		return
	}
	h.mut.Lock()
	defer h.mut.Unlock()
	h.bookmarks = BookmarksFrom(newBookmark)
}
