package main

import "flag"

// Options holds CLI options for the blog zone server.
type Options struct {
	ConfigPath string
	Name       string
	Listen     string
	Peers      stringList
}

// ParseFlags parses CLI flags from args and returns Options. Flags override
// the corresponding config file values when set.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("interconnect-blog", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.Name, "name", "", "Zone name (overrides config)")
	fs.StringVar(&opts.Listen, "listen", "", "Listen address (overrides config)")
	fs.Var(&opts.Peers, "peer", "Known destination zone (repeatable)")
	_ = fs.Parse(args)
	return opts
}

type stringList []string

func (s *stringList) String() string { return "" }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
