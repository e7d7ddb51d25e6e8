// Package envutil reads typed configuration values from the environment or
// any other Source.
//
//	retries := envutil.Int(src, "RESTYLE_MAX_RETRIES", envutil.Default(3)).ValueOrElse(3)
//	base, err := envutil.Duration(src, "RESTYLE_RETRY_DELAY_BASE",
//	    envutil.Default(time.Second)).Value()
package envutil

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrOutOfRange = errors.New("value out of range")

// String reads a raw string.
func String(src Source, key string, opts ...Option[string]) Reader[string] {
	return apply(get(src, key), opts)
}

// Bool accepts the strconv.ParseBool forms plus yes/no and on/off.
func Bool(src Source, key string, opts ...Option[bool]) Reader[bool] {
	return apply(Map(get(src, key), parseBool), opts)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}

	return strconv.ParseBool(strings.TrimSpace(s))
}

// Int reads a base-10 integer.
func Int(src Source, key string, opts ...Option[int]) Reader[int] {
	return apply(Map(get(src, key), func(s string) (int, error) {
		return strconv.Atoi(strings.TrimSpace(s))
	}), opts)
}

// Float64 reads a floating point number.
func Float64(src Source, key string, opts ...Option[float64]) Reader[float64] {
	return apply(Map(get(src, key), func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}), opts)
}

// Duration reads a time.ParseDuration value. A bare integer is taken as
// milliseconds, matching how delays are usually written in env files.
func Duration(src Source, key string, opts ...Option[time.Duration]) Reader[time.Duration] {
	return apply(Map(get(src, key), parseDuration), opts)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return time.ParseDuration(s)
}

// URL reads an absolute URL.
func URL(src Source, key string, opts ...Option[*url.URL]) Reader[*url.URL] {
	return apply(Map(get(src, key), func(s string) (*url.URL, error) {
		u, err := url.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}

		if !u.IsAbs() {
			return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrBadEnvVar, s)
		}

		return u, nil
	}), opts)
}

// Between returns a validator accepting values in [lo, hi].
func Between[T int | float64 | time.Duration](lo, hi T) func(T) error {
	return func(v T) error {
		if v < lo || v > hi {
			return fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfRange, v, lo, hi)
		}

		return nil
	}
}
