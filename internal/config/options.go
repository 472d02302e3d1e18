// Package config assembles the options a moco run needs from command-line
// flags and an optional YAML file, the way tinygo's compileopts package
// assembles a compiler invocation's options.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"
)

var validWidths = []string{"16", "32", "64"}

// Options holds everything a moco run needs, merged from flags and an
// optional YAML config file, flags taking precedence.
type Options struct {
	Width           string `yaml:"width"`
	HeapSize        string `yaml:"heap_size"`
	Code            uint64 `yaml:"c"`
	Program         string `yaml:"program"`
	Hex             bool   `yaml:"hex"`
	VerifyChecksum  bool   `yaml:"verify_checksum"`
	Repl            bool   `yaml:"-"`
	Dump            string `yaml:"-"`
	Color           bool   `yaml:"-"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`

	heapSizeBytes uint64
}

const (
	defaultWidth    = "32"
	defaultHeapSize = "64KiB"
	defaultCode     = uint64(0b11)
)

// Parse builds Options from the given flag set and argument list, then
// merges in configPath's YAML content (if non-empty) under any flag the
// caller didn't explicitly set, and finally validates the result. The
// -width, -heap-size and -c flags have blank/zero defaults here; Parse
// fills in their real defaults after the YAML merge, then calls Verify.
func Parse(args []string) (*Options, error) {
	fs := flag.NewFlagSet("moco", flag.ContinueOnError)
	o := &Options{}
	var configPath string

	fs.StringVar(&o.Width, "width", "", "word width: 16, 32, or 64 (default 32)")
	fs.StringVar(&o.HeapSize, "heap-size", "", "heap size, e.g. 64KiB, 1MiB (default 64KiB)")
	fs.Uint64Var(&o.Code, "c", 0, "bit-path constant naming the code-pointer slot (default 0b11)")
	fs.StringVar(&o.Program, "program", "", "path to a program file")
	fs.BoolVar(&o.Hex, "hex", false, "treat -program as Intel HEX rather than raw wire format")
	fs.BoolVar(&o.VerifyChecksum, "verify-checksum", false, "verify a trailing CRC-16/CCITT over the program bytes")
	fs.StringVar(&configPath, "config", "", "optional YAML file merged under the flags above")
	fs.BoolVar(&o.Repl, "repl", false, "drop into a debug shell after halt or fault")
	fs.StringVar(&o.Dump, "dump", "", "write a heap snapshot to this path after the run")
	fs.BoolVar(&o.Color, "color", true, "colorize fault output on a terminal")
	fs.IntVar(&o.TimeoutSeconds, "timeout", 0, "abort the run after this many seconds (0 = no timeout)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if configPath != "" {
		if err := o.mergeYAML(configPath, set); err != nil {
			return nil, err
		}
	}

	if o.Width == "" {
		o.Width = defaultWidth
	}
	if o.HeapSize == "" {
		o.HeapSize = defaultHeapSize
	}
	if !set["c"] && o.Code == 0 {
		o.Code = defaultCode
	}

	if err := o.Verify(); err != nil {
		return nil, err
	}
	return o, nil
}

// mergeYAML loads path and fills in any field whose flag wasn't explicitly
// set on the command line; set names the flags the user did give.
func (o *Options) mergeYAML(path string, set map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fromFile Options
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if !set["width"] && fromFile.Width != "" {
		o.Width = fromFile.Width
	}
	if !set["heap-size"] && fromFile.HeapSize != "" {
		o.HeapSize = fromFile.HeapSize
	}
	if !set["c"] && fromFile.Code != 0 {
		o.Code = fromFile.Code
	}
	if !set["program"] && fromFile.Program != "" {
		o.Program = fromFile.Program
	}
	if !set["hex"] && fromFile.Hex {
		o.Hex = fromFile.Hex
	}
	if !set["verify-checksum"] && fromFile.VerifyChecksum {
		o.VerifyChecksum = fromFile.VerifyChecksum
	}
	if !set["timeout"] && fromFile.TimeoutSeconds != 0 {
		o.TimeoutSeconds = fromFile.TimeoutSeconds
	}
	return nil
}

// Verify validates option values and resolves HeapSize into a number,
// following the teacher's flat validate-after-assemble idiom. The number
// parsed from HeapSize ("64KiB" is 65536) is used as the heap's word
// count, not divided by the word width.
func (o *Options) Verify() error {
	if !isInArray(validWidths, o.Width) {
		return fmt.Errorf("invalid -width=%s: valid values are %s", o.Width, strings.Join(validWidths, ", "))
	}

	size, err := bytesize.Parse(o.HeapSize)
	if err != nil {
		return fmt.Errorf("invalid -heap-size=%s: %w", o.HeapSize, err)
	}
	n := uint64(size)
	if n%2 != 0 {
		return fmt.Errorf("invalid -heap-size=%s: heap must hold a whole number of cells (even word count)", o.HeapSize)
	}
	o.heapSizeBytes = n

	if o.Program == "" {
		return fmt.Errorf("-program is required")
	}
	return nil
}

// HeapWords returns the heap size in machine words, resolved by Verify:
// the number parsed from HeapSize, taken as a word count.
func (o *Options) HeapWords() uint64 {
	return o.heapSizeBytes
}

func isInArray(arr []string, item string) bool {
	for _, i := range arr {
		if i == item {
			return true
		}
	}
	return false
}
