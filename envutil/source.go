package envutil

import (
	"os"
	"strings"
)

// Source resolves configuration keys. The process environment is one
// source; files and literal maps are others.
type Source interface {
	Lookup(key string) (string, bool)
}

type osSource struct{}

func (osSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// OS returns the process environment as a Source.
func OS() Source {
	return osSource{}
}

// Values is a Source backed by a literal map.
type Values map[string]string

func (m Values) Lookup(key string) (string, bool) {
	v, ok := m[key]

	return v, ok
}

type layered []Source

func (l layered) Lookup(key string) (string, bool) {
	for _, src := range l {
		if src == nil {
			continue
		}

		if v, ok := src.Lookup(key); ok {
			return v, true
		}
	}

	return "", false
}

// Layered combines sources; the first one that has a key wins.
//
//	src := envutil.Layered(envutil.OS(), fileValues)
func Layered(sources ...Source) Source {
	return layered(sources)
}

func get(src Source, key string) Reader[string] {
	if src == nil {
		src = OS()
	}

	val, ok := src.Lookup(key)
	if ok && strings.TrimSpace(val) == "" {
		// An exported-but-empty variable counts as unset.
		ok = false
	}

	return Reader[string]{key: key, present: ok, value: val}
}
