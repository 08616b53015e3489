// Copyright 2018 The parables Authors
// This file is part of the parables library.
//
// The parables library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The parables library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the parables library. If not, see <http://www.gnu.org/licenses/>.

package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// topicKind discriminates topic filter slots.
type topicKind byte

const (
	topicAny topicKind = iota
	topicThis
	topicOneOf
)

// Topic is one slot of a topic filter.
type Topic struct {
	kind   topicKind
	values []common.Hash
}

// Any matches every topic value.
func Any() Topic { return Topic{kind: topicAny} }

// This matches exactly the given topic value.
func This(value common.Hash) Topic {
	return Topic{kind: topicThis, values: []common.Hash{value}}
}

// OneOf matches any of the given topic values.
func OneOf(values ...common.Hash) Topic {
	return Topic{kind: topicOneOf, values: values}
}

func (t Topic) matches(value common.Hash) bool {
	if t.kind == topicAny {
		return true
	}
	for _, candidate := range t.values {
		if candidate == value {
			return true
		}
	}
	return false
}

func (t Topic) isAny() bool { return t.kind == topicAny }

// Event describes a log record type: its signature hash keying the topic
// bucket, and the decoding of one raw log into T.
type Event[T any] interface {
	Topic() common.Hash
	ParseLog(entry *types.Log) (T, error)
}

// SenderLog pairs a decoded log with the address that emitted it.
type SenderLog[T any] struct {
	Sender common.Address
	Log    T
}

// LogDrainer filters and removes recorded logs of one event type. Entries
// that do not match the filter stay recorded for later drains.
type LogDrainer[T any] struct {
	evm    *EVM
	event  Event[T]
	topics [3]Topic
}

// Logs builds a drainer over every recorded log of the given event.
func Logs[T any](e *EVM, event Event[T]) *LogDrainer[T] {
	return &LogDrainer[T]{
		evm:    e,
		event:  event,
		topics: [3]Topic{Any(), Any(), Any()},
	}
}

// Filter narrows the drainer to logs whose indexed topics match the given
// slots. The event signature topic is always matched exactly.
func (d *LogDrainer[T]) Filter(topic1, topic2, topic3 Topic) *LogDrainer[T] {
	out := *d
	out.topics = [3]Topic{topic1, topic2, topic3}
	return &out
}

// Drain removes and decodes every matching log, in emission order.
func (d *LogDrainer[T]) Drain() ([]T, error) {
	entries, err := d.drain()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Log)
	}
	return out, nil
}

// DrainWithSender drains matching logs along with their emitting address.
func (d *LogDrainer[T]) DrainWithSender() ([]SenderLog[T], error) {
	return d.drain()
}

// Drop removes every matching log without decoding.
func (d *LogDrainer[T]) Drop() error {
	topic := d.event.Topic()
	bucket := d.evm.logs[topic]
	var keep []*types.Log
	for _, entry := range bucket {
		if !d.matches(entry) {
			keep = append(keep, entry)
		}
	}
	d.setBucket(topic, keep)
	return nil
}

func (d *LogDrainer[T]) drain() ([]SenderLog[T], error) {
	topic := d.event.Topic()
	bucket := d.evm.logs[topic]

	var (
		out  []SenderLog[T]
		keep []*types.Log
	)
	for _, entry := range bucket {
		if !d.matches(entry) {
			keep = append(keep, entry)
			continue
		}
		decoded, err := d.event.ParseLog(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to parse log entry: %w", err)
		}
		out = append(out, SenderLog[T]{Sender: entry.Address, Log: decoded})
	}
	d.setBucket(topic, keep)
	return out, nil
}

// matches tests the log topics slot by slot; filter slots beyond the log's
// topics must be wildcards.
func (d *LogDrainer[T]) matches(entry *types.Log) bool {
	filter := [4]Topic{This(d.event.Topic()), d.topics[0], d.topics[1], d.topics[2]}
	if len(entry.Topics) > len(filter) {
		return false
	}
	for i, topic := range entry.Topics {
		if !filter[i].matches(topic) {
			return false
		}
	}
	for _, slot := range filter[len(entry.Topics):] {
		if !slot.isAny() {
			return false
		}
	}
	return true
}

func (d *LogDrainer[T]) setBucket(topic common.Hash, keep []*types.Log) {
	if len(keep) == 0 {
		delete(d.evm.logs, topic)
		return
	}
	d.evm.logs[topic] = keep
}

// HasLogs reports whether any recorded log remains undrained.
func (e *EVM) HasLogs() bool {
	for _, bucket := range e.logs {
		if len(bucket) > 0 {
			return true
		}
	}
	return false
}

// RawLogs exposes the undrained logs, bucketed by first topic. The map is
// shared; callers must not mutate it.
func (e *EVM) RawLogs() map[common.Hash][]*types.Log {
	return e.logs
}
