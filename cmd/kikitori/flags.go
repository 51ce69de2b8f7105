package main

import (
	"fmt"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/spf13/pflag"
)

// LevelFlag is a JLPT level given on the command line.
type LevelFlag content.Level

// Set implements pflag.Value.
func (l *LevelFlag) Set(v string) error {
	level, err := content.ParseLevel(v)
	if err != nil {
		return fmt.Errorf("invalid value %q, valid values are %v", v, content.Levels)
	}
	*l = LevelFlag(level)
	return nil
}

// String implements pflag.Value.
func (l *LevelFlag) String() string {
	if l == nil {
		return ""
	}
	return string(*l)
}

// Type implements pflag.Value.
func (l *LevelFlag) Type() string {
	return "LevelFlag"
}

func (l LevelFlag) Level() content.Level {
	return content.Level(l)
}

type ProviderFlag string

const (
	ProviderHashing ProviderFlag = "hashing"
	ProviderOpenAI  ProviderFlag = "openai"
	ProviderONNX    ProviderFlag = "onnx"
)

var (
	_ pflag.Value = (*LevelFlag)(nil)
	_ pflag.Value = (*ProviderFlag)(nil)

	allProviders = []ProviderFlag{ProviderHashing, ProviderOpenAI, ProviderONNX}
)

func (p *ProviderFlag) Set(val string) error {
	for _, candidate := range allProviders {
		if val == string(candidate) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("invalid value %q, valid values are %v", val, allProviders)
}

func (p *ProviderFlag) String() string {
	if p == nil {
		return ""
	}
	return string(*p)
}

func (p *ProviderFlag) Type() string {
	return "ProviderFlag"
}
