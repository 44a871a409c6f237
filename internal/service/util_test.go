package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	even := func(n int) bool { return n%2 == 0 }

	require.Equal(t, []int{2, 4}, Filter([]int{1, 2, 3, 4}, even))
	require.Nil(t, Filter([]int{1, 3}, even))
	require.Nil(t, Filter(nil, even))
}

func TestCount(t *testing.T) {
	require.Equal(t, 2, Count([]string{"a", "", "b"}, func(s string) bool { return s != "" }))
	require.Zero(t, Count([]string(nil), func(string) bool { return true }))
}

func TestFilterMap(t *testing.T) {
	in := map[string]int{"c1": 1, "c2": 2, "c3": 3}

	out := FilterMap(in, func(k string, v int) bool { return v > 1 })

	require.Equal(t, map[string]int{"c2": 2, "c3": 3}, out)
	require.Len(t, in, 3, "input must not be modified")
}
