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

import "strings"

// Statement is a parameterised query text ready for execution. Parameter
// values are dynamically typed, nil is distinguishable from absence.
type Statement struct {
	text   string
	params map[string]any
}

func NewStatement(text string, params map[string]any) Statement {
	return Statement{text: text, params: params}
}

func (s Statement) Text() string {
	return s.text
}

func (s Statement) Params() map[string]any {
	return s.params
}

func (s Statement) validate() error {
	if len(strings.TrimSpace(s.text)) == 0 {
		return &UsageError{Message: "Statement text can not be empty"}
	}
	return nil
}
