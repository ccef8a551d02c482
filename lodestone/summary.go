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

import "github.com/lodestone-db/lodestone-go-driver/lodestone/db"

// StatementType defines the type of the statement.
type StatementType int

const (
	StatementTypeUnknown     StatementType = StatementType(db.StatementTypeUnknown)
	StatementTypeReadOnly    StatementType = StatementType(db.StatementTypeReadOnly)
	StatementTypeReadWrite   StatementType = StatementType(db.StatementTypeReadWrite)
	StatementTypeWriteOnly   StatementType = StatementType(db.StatementTypeWriteOnly)
	StatementTypeSchemaWrite StatementType = StatementType(db.StatementTypeSchemaWrite)
)

// Counters contains the statistics about changes made to the database by
// the statement.
type Counters interface {
	// ContainsUpdates reports whether there were any updates at all.
	ContainsUpdates() bool
	NodesCreated() int
	NodesDeleted() int
	RelationshipsCreated() int
	RelationshipsDeleted() int
	PropertiesSet() int
	LabelsAdded() int
	LabelsRemoved() int
	IndexesAdded() int
	IndexesRemoved() int
	ConstraintsAdded() int
	ConstraintsRemoved() int
}

// Notification represents a notification generated when executing the
// statement.
type Notification = db.Notification

// Plan describes the plan the database planner produced.
type Plan = db.Plan

// ProfiledPlan is an executed plan with per-operator work accounting.
type ProfiledPlan = db.ProfiledPlan

// ResultSummary is the terminal summary of an executed statement,
// materialised once the record stream has been fully consumed.
type ResultSummary interface {
	// Statement returns the statement that has been executed.
	Statement() Statement
	// StatementType returns the type of the statement.
	StatementType() StatementType
	// Counters returns the change statistics.
	Counters() Counters
	// Notifications returns the notifications attached to the execution,
	// empty when there are none.
	Notifications() []Notification
	// Plan returns the plan when the statement was explained, nil
	// otherwise.
	Plan() *Plan
	// Profile returns the profiled plan when the statement was profiled,
	// nil otherwise.
	Profile() *ProfiledPlan
}

type resultSummary struct {
	sum       *db.Summary
	statement Statement
}

func (s *resultSummary) Statement() Statement {
	return s.statement
}

func (s *resultSummary) StatementType() StatementType {
	return StatementType(s.sum.StmntType)
}

func (s *resultSummary) Counters() Counters {
	return &counters{counts: s.sum.Counters}
}

func (s *resultSummary) Notifications() []Notification {
	return s.sum.Notifications
}

func (s *resultSummary) Plan() *Plan {
	return s.sum.Plan
}

func (s *resultSummary) Profile() *ProfiledPlan {
	return s.sum.ProfiledPlan
}

type counters struct {
	counts map[string]int
}

func (c *counters) count(key string) int {
	return c.counts[key]
}

func (c *counters) ContainsUpdates() bool {
	for _, count := range c.counts {
		if count > 0 {
			return true
		}
	}
	return false
}

func (c *counters) NodesCreated() int          { return c.count(db.NodesCreated) }
func (c *counters) NodesDeleted() int          { return c.count(db.NodesDeleted) }
func (c *counters) RelationshipsCreated() int  { return c.count(db.RelationshipsCreated) }
func (c *counters) RelationshipsDeleted() int  { return c.count(db.RelationshipsDeleted) }
func (c *counters) PropertiesSet() int         { return c.count(db.PropertiesSet) }
func (c *counters) LabelsAdded() int           { return c.count(db.LabelsAdded) }
func (c *counters) LabelsRemoved() int         { return c.count(db.LabelsRemoved) }
func (c *counters) IndexesAdded() int          { return c.count(db.IndexesAdded) }
func (c *counters) IndexesRemoved() int        { return c.count(db.IndexesRemoved) }
func (c *counters) ConstraintsAdded() int      { return c.count(db.ConstraintsAdded) }
func (c *counters) ConstraintsRemoved() int    { return c.count(db.ConstraintsRemoved) }
