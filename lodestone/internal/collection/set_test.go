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

package collection_test

import (
	"testing"
	"testing/quick"

	"github.com/lodestone-db/lodestone-go-driver/lodestone/internal/collection"
)

func TestSet(outer *testing.T) {
	outer.Parallel()

	outer.Run("adds", func(t *testing.T) {
		ints := collection.NewSet([]int{})
		addition := func(i int) bool {
			ints.Add(i)
			return containsExactlyOnce(ints, i)
		}
		if err := quick.Check(addition, nil); err != nil {
			t.Error(err)
		}
	})

	outer.Run("adds all", func(t *testing.T) {
		strings := collection.NewSet([]string{})
		additions := func(strs []string) bool {
			strings.AddAll(strs)
			for _, str := range strs {
				if !containsExactlyOnce(strings, str) {
					return false
				}
			}
			return true
		}
		if err := quick.Check(additions, nil); err != nil {
			t.Error(err)
		}
	})

	outer.Run("removes", func(t *testing.T) {
		strings := collection.NewSet([]string{"a", "b", "c"})
		strings.RemoveAll([]string{"a", "c", "d"})
		if !strings.Contains("b") || strings.Contains("a") || strings.Contains("c") {
			t.Errorf("unexpected content: %v", strings.Values())
		}
	})

	outer.Run("unions", func(t *testing.T) {
		left := collection.NewSet([]string{"a", "b"})
		left.Union(collection.NewSet([]string{"b", "c"}))
		if len(left.Values()) != 3 {
			t.Errorf("expected 3 values, got %v", left.Values())
		}
	})
}

func containsExactlyOnce[T comparable](set collection.Set[T], value T) bool {
	count := 0
	for _, v := range set.Values() {
		if v == value {
			count++
		}
	}
	return count == 1
}
