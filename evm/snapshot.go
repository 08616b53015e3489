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

import "sync"

// Copier is a value which can produce independent clones of itself.
type Copier[T any] interface {
	Copy() T
}

// Snapshot shares a starting state between concurrent tests. Get hands
// each caller its own clone; the original is never mutated.
type Snapshot[T Copier[T]] struct {
	mu    sync.Mutex
	inner T
}

// NewSnapshot wraps a prepared state.
func NewSnapshot[T Copier[T]](inner T) *Snapshot[T] {
	return &Snapshot[T]{inner: inner}
}

// Get returns an independent clone of the wrapped state.
func (s *Snapshot[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Copy()
}
