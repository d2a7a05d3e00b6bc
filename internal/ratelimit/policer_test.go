package ratelimit

import (
	"testing"
	"time"
)

func TestConformsDrainsOverTime(t *testing.T) {
	params := &Params{BucketSize: 10, DrainRate: 1}
	p := New(params)

	start := time.Unix(1000, 0)

	for i := 0; i < 9; i++ {
		if !p.Conforms(start, 1) {
			t.Fatalf("request %d should conform", i)
		}
	}

	// Bucket is now at 9 with no drain yet; one more request pushes to the
	// edge but should still conform since level (9) < bucket size (10).
	if !p.Conforms(start, 1) {
		t.Fatal("10th request should still conform at the boundary")
	}

	// Bucket now at 10: next request observes level==size, non-conforming.
	if p.Conforms(start, 1) {
		t.Fatal("11th immediate request should not conform")
	}

	// After 11 seconds of draining at 1/s, bucket should be empty again.
	later := start.Add(11 * time.Second)
	if !p.Conforms(later, 1) {
		t.Fatal("request after drain should conform")
	}
}

func TestParamsSet(t *testing.T) {
	p := NewParams()
	if !p.Set("size", "5") {
		t.Fatal("size should be recognized")
	}
	if !p.Set("drain-rate", "0.5") {
		t.Fatal("drain-rate should be recognized")
	}
	if p.Set("bogus", "1") {
		t.Fatal("unknown key should be rejected")
	}
	if p.BucketSize != 5 || p.DrainRate != 0.5 {
		t.Fatalf("got %+v", p)
	}
}

func TestUnconfiguredPolicerConforms(t *testing.T) {
	var p Policer
	if !p.Conforms(time.Now(), 100) {
		t.Fatal("unconfigured policer should always conform")
	}
}
