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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookmarks(outer *testing.T) {
	outer.Parallel()

	outer.Run("empty set is empty", func(t *testing.T) {
		assert.True(t, EmptyBookmarks().IsEmpty())
		assert.Equal(t, "", EmptyBookmarks().LastBookmark())
		assert.Equal(t, 0, EmptyBookmarks().Len())
	})

	outer.Run("preserves insertion order", func(t *testing.T) {
		b := BookmarksFrom("bm:3", "bm:1", "bm:2")
		assert.Equal(t, []string{"bm:3", "bm:1", "bm:2"}, b.Values())
	})

	outer.Run("drops duplicates and empty tokens", func(t *testing.T) {
		b := BookmarksFrom("bm:1", "", "bm:2", "bm:1")
		assert.Equal(t, []string{"bm:1", "bm:2"}, b.Values())
	})

	outer.Run("last bookmark is the last element", func(t *testing.T) {
		b := BookmarksFrom("bm:1", "bm:2")
		assert.Equal(t, "bm:2", b.LastBookmark())
	})

	outer.Run("union with empty is identity", func(t *testing.T) {
		b := BookmarksFrom("bm:1", "bm:2")
		assert.Equal(t, b.Values(), b.Union(EmptyBookmarks()).Values())
		assert.Equal(t, b.Values(), EmptyBookmarks().Union(b).Values())
	})

	outer.Run("union keeps left-hand order first", func(t *testing.T) {
		left := BookmarksFrom("bm:1", "bm:2")
		right := BookmarksFrom("bm:2", "bm:3")
		assert.Equal(t, []string{"bm:1", "bm:2", "bm:3"}, left.Union(right).Values())
	})

	outer.Run("combine folds unions in order", func(t *testing.T) {
		combined := CombineBookmarks(BookmarksFrom("a"), EmptyBookmarks(), BookmarksFrom("b", "a"))
		assert.Equal(t, []string{"a", "b"}, combined.Values())
	})
}

func TestBookmarksHolder(outer *testing.T) {
	outer.Parallel()

	outer.Run("replaces on new bookmark", func(t *testing.T) {
		holder := newBookmarksHolder(BookmarksFrom("bm:1"))
		holder.replace("bm:2")
		require.Equal(t, []string{"bm:2"}, holder.currentRaw())
		assert.Equal(t, "bm:2", holder.lastBookmark())
	})

	outer.Run("keeps current set on empty bookmark", func(t *testing.T) {
		holder := newBookmarksHolder(BookmarksFrom("bm:1"))
		holder.replace("")
		assert.Equal(t, []string{"bm:1"}, holder.currentRaw())
	})
}
