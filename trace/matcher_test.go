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

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrimaBlock/parables/linker"
)

func TestLocationMatcher(t *testing.T) {
	object := &linker.Object{Path: "Test.sol", Item: "Test"}

	assert.True(t, Location("Test.sol:Test:foo").MatchesLocation(object, "foo"))
	assert.True(t, Location("Test:foo").MatchesLocation(object, "foo"))
	assert.True(t, Location("foo").MatchesLocation(object, "foo"))
	assert.True(t, Location("foo").MatchesLocation(nil, "foo"))

	assert.False(t, Location("foo").MatchesLocation(nil, ""))
	assert.False(t, Location("Other.sol:Test:foo").MatchesLocation(object, "foo"))
	assert.False(t, Location("Test:bar").MatchesLocation(object, "foo"))

	assert.True(t, Match().MatchesLocation(nil, ""))
	assert.Equal(t, "Test.sol:*:foo", Match().Path("Test.sol").Function("foo").String())
}

func TestStatementMatcher(t *testing.T) {
	lines := []string{"    owner = v;", "    require(v == 0);"}
	assert.True(t, Statement("require(v == 0);").MatchesLines(lines))
	assert.False(t, Statement("require(v == 1);").MatchesLines(lines))
	assert.False(t, Statement("require").MatchesLines(nil))
}

func TestFindLines(t *testing.T) {
	source := []byte("first\nsecond line\nthird\n")

	lines, line, err := FindLines(source, 6, 12)
	require.NoError(t, err)
	assert.Equal(t, 1, line)
	assert.Equal(t, []string{"second line"}, lines)

	// A span crossing a line boundary yields both lines.
	lines, line, err = FindLines(source, 8, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, line)
	assert.Equal(t, []string{"second line", "third"}, lines)

	_, _, err = FindLines(source, 100, 110)
	assert.Error(t, err)
	_, _, err = FindLines(source, 6, 6)
	assert.Error(t, err)
}
