package content

import (
	"fmt"
	"strings"
)

// Level is a JLPT band. The zero value means the level is unset.
type Level string

const (
	LevelUnset Level = ""
	LevelN5    Level = "N5"
	LevelN4    Level = "N4"
	LevelN3    Level = "N3"
	LevelN2    Level = "N2"
	LevelN1    Level = "N1"
)

// Levels lists every valid level from beginner to advanced.
var Levels = []Level{LevelN5, LevelN4, LevelN3, LevelN2, LevelN1}

// Valid reports whether l is unset or one of N5..N1.
func (l Level) Valid() bool {
	if l == LevelUnset {
		return true
	}
	for _, level := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// ParseLevel accepts N1..N5 case-insensitively; an empty string yields LevelUnset.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return LevelUnset, fmt.Errorf("invalid JLPT level %q: must be one of %v", s, Levels)
	}
	return l, nil
}

func (l Level) String() string {
	return string(l)
}

func levelFromNull(s *string) Level {
	if s == nil {
		return LevelUnset
	}
	return Level(*s)
}

func (l Level) nullable() *string {
	if l == LevelUnset {
		return nil
	}
	s := string(l)
	return &s
}
