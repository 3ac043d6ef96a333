package gcs

import (
	"math/big"
	"testing"
	"testing/quick"
	"time"
)

func TestHeadObjName(t *testing.T) {
	tests := []struct {
		name string
		fn   interface{}
	}{
		{
			name: "reversible",
			fn: func(nanos int64) bool {
				tm := nanosToTime(big.NewInt(nanos))
				got := timeToNanos(tm)
				return got.Int64() == nanos
			},
		},
		{
			name: "round trip",
			fn: func(secs, nsecs int64) bool {
				tm := randToTime(secs, nsecs)
				tm2, err := headTimeFromObjName(headObjName(tm))
				if err != nil {
					t.Log(err)
					return false
				}
				return tm.Equal(tm2)
			},
		},
		{
			name: "newest first",
			fn: func(s1, n1, s2, n2 int64) bool {
				t1 := randToTime(s1, n1)
				t2 := randToTime(s2, n2)
				name1 := headObjName(t1)
				name2 := headObjName(t2)
				if t1.Before(t2) {
					return name1 > name2
				}
				if t1.After(t2) {
					return name1 < name2
				}
				return name1 == name2
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := quick.Check(tt.fn, nil)
			if err != nil {
				t.Error(err)
			}
		})
	}

	if _, err := headTimeFromObjName("b:1234"); err == nil {
		t.Error("got no error parsing a blob object name")
	}
}

func randToTime(secs, nsecs int64) time.Time {
	nsecs %= int64(time.Second)
	return time.Unix(secs, nsecs)
}
