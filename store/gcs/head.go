package gcs

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const headPrefix = "h:"

var now = time.Now

// Head object names embed the time subtracted from the maximum time,
// zero-padded, so lexical order is reverse chronological.
func headObjName(t time.Time) string {
	return headPrefix + nanosToStr(timeToInvNanos(t))
}

func headTimeFromObjName(name string) (time.Time, error) {
	if !strings.HasPrefix(name, headPrefix) {
		return time.Time{}, errors.Errorf("%s is not a head object name", name)
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(name, headPrefix), 10)
	if !ok {
		return time.Time{}, errors.Errorf("malformed head object name %s", name)
	}
	return invNanosToTime(n), nil
}

var nanosPerSecond, maxTimeNanos *big.Int

func timeToNanos(t time.Time) *big.Int {
	n := big.NewInt(t.Unix())
	n.Mul(n, nanosPerSecond)
	return n.Add(n, big.NewInt(int64(t.Nanosecond())))
}

func nanosToTime(n *big.Int) time.Time {
	var secs, nanos big.Int
	secs.DivMod(n, nanosPerSecond, &nanos)
	return time.Unix(secs.Int64(), nanos.Int64())
}

func timeToInvNanos(t time.Time) *big.Int {
	n := timeToNanos(t)
	return n.Sub(maxTimeNanos, n)
}

func invNanosToTime(n *big.Int) time.Time {
	var inv big.Int
	inv.Sub(maxTimeNanos, n)
	return nanosToTime(&inv)
}

func nanosToStr(n *big.Int) string {
	return fmt.Sprintf("%030s", n)
}

func init() {
	// This is from https://stackoverflow.com/a/32620397
	maxTime := time.Unix(1<<63-1-int64((1969*365+1969/4-1969/100+1969/400)*24*60*60), 999999999)

	nanosPerSecond = big.NewInt(int64(time.Second))
	maxTimeNanos = timeToNanos(maxTime) // Must call after nanosPerSecond is initialized
}
