package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads rules from a filter file and appends them to the chain.
// One rule per line:
//
//	+ PATTERN        include
//	- PATTERN        exclude
//	PATTERN          exclude
//	min-size SIZE    skip smaller files
//	max-size SIZE    skip larger files
//	skip-hidden      skip entries with the hidden attribute
//
// Blank lines and lines starting with # or ; are ignored.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	return c.Load(f, path)
}

// Load reads rules in the LoadFile format from r. name labels errors.
func (c *Chain) Load(r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if err := c.parseLine(line); err != nil {
			return fmt.Errorf("%s:%d: %w", name, n, err)
		}
	}
	return scanner.Err()
}

func (c *Chain) parseLine(line string) error {
	switch {
	case strings.HasPrefix(line, "+ "):
		return c.AddInclude(strings.TrimSpace(line[2:]))
	case strings.HasPrefix(line, "- "):
		return c.AddExclude(strings.TrimSpace(line[2:]))
	}

	keyword, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch keyword {
	case "min-size", "max-size":
		n, err := ParseSize(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", keyword, err)
		}
		if keyword == "min-size" {
			c.SetMinSize(n)
		} else {
			c.SetMaxSize(n)
		}
		return nil
	case "skip-hidden":
		if arg != "" {
			return fmt.Errorf("skip-hidden takes no argument, got %q", arg)
		}
		c.SetSkipHidden(true)
		return nil
	}
	return c.AddExclude(line)
}
