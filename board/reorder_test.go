package board

import (
	"reflect"
	"testing"
)

func TestArrayMove(t *testing.T) {
	cases := []struct {
		from, to int
		want     []int
	}{
		{0, 2, []int{1, 2, 0, 3}},
		{3, 1, []int{0, 3, 1, 2}},
		{1, 1, []int{0, 1, 2, 3}},
		{-1, 2, []int{0, 1, 2, 3}},
		{0, 4, []int{0, 1, 2, 3}},
	}
	for _, tc := range cases {
		in := []int{0, 1, 2, 3}
		got := ArrayMove(in, tc.from, tc.to)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("move %d->%d: got %v want %v", tc.from, tc.to, got, tc.want)
		}
		if !reflect.DeepEqual(in, []int{0, 1, 2, 3}) {
			t.Fatalf("input mutated: %v", in)
		}
	}
}

func TestKeyedMutexOrdersAndReleases(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock(5, 2, 5)
	if k.size() != 2 {
		t.Fatalf("expected two held keys, got %d", k.size())
	}
	unlock()
	unlock()
	if k.size() != 0 {
		t.Fatalf("expected all keys released, got %d", k.size())
	}
}
