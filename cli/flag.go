package cli

import "time"

// StringFlag is the definition of a flag parsed as a string. The value is
// read from the first environment variable set when the flag is missing.
//
// - implements cli.Flag
type StringFlag struct {
	Name     string
	Usage    string
	Required bool
	Value    string
	EnvVars  []string
}

// Flag implements cli.Flag.
func (flag StringFlag) Flag() {}

// StringSliceFlag is the definition of a flag parsed as a list of strings. It
// can be repeated, or given as a comma-separated list.
//
// - implements cli.Flag
type StringSliceFlag struct {
	Name     string
	Usage    string
	Required bool
	Value    []string
}

// Flag implements cli.Flag.
func (flag StringSliceFlag) Flag() {}

// DurationFlag is the definition of a flag parsed as a duration.
//
// - implements cli.Flag
type DurationFlag struct {
	Name     string
	Usage    string
	Required bool
	Value    time.Duration
}

// Flag implements cli.Flag.
func (flag DurationFlag) Flag() {}

// IntFlag is the definition of a flag parsed as an integer.
//
// - implements cli.Flag
type IntFlag struct {
	Name     string
	Usage    string
	Required bool
	Value    int
	EnvVars  []string
}

// Flag implements cli.Flag.
func (flag IntFlag) Flag() {}

// BoolFlag is the definition of a flag parsed as a boolean. A boolean flag is
// set by its presence.
//
// - implements cli.Flag
type BoolFlag struct {
	Name  string
	Usage string
	Value bool
}

// Flag implements cli.Flag.
func (flag BoolFlag) Flag() {}
