// Command bloombuild builds a filter payload and its checksum manifest from a
// newline separated list of keys.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/baronrustamov/bloomsync/internal/filter/common/log"
	"github.com/baronrustamov/bloomsync/internal/filter/domain"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/bloom"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/checksum"
)

// maxFilterBytes keeps the bit count within 32 bits.
const maxFilterBytes = math.MaxUint32 / 8

type options struct {
	in       string
	out      string
	manifest string
	n        uint64
	fpRate   float64
	k        uint
	size     uint
}

func main() {
	if err := run(os.Args[1:], os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "bloombuild: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("bloombuild", flag.ContinueOnError)
	fs.StringVar(&o.in, "in", "-", "keys file, one per line (- for stdin)")
	fs.StringVar(&o.out, "out", "", "filter payload output path")
	fs.StringVar(&o.manifest, "manifest", "", "checksum manifest output path")
	fs.Uint64Var(&o.n, "n", 0, "expected number of keys (default: number of keys read)")
	fs.Float64Var(&o.fpRate, "p", 0.01, "target false positive rate")
	fs.UintVar(&o.k, "k", 0, "hash count override, requires -bytes")
	fs.UintVar(&o.size, "bytes", 0, "bit array size in bytes override, requires -k")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.out == "" {
		return o, errors.New("-out is required")
	}
	if (o.k == 0) != (o.size == 0) {
		return o, errors.New("-k and -bytes must be given together")
	}
	if o.k > bloom.MaxHashCount {
		return o, fmt.Errorf("-k %d exceeds the maximum of %d", o.k, bloom.MaxHashCount)
	}
	if o.size > maxFilterBytes {
		return o, fmt.Errorf("-bytes %d exceeds the maximum of %d", o.size, maxFilterBytes)
	}
	return o, nil
}

// readKeys returns the keys listed in r in first-seen order. Whole-line '#'
// comments, blank lines and duplicates are skipped. Inline '#' is kept since
// URL keys may carry fragments.
func readKeys(r io.Reader) ([]string, error) {
	var keys []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		k := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\uFEFF"))
		if k == "" || strings.HasPrefix(k, "#") {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, sc.Err()
}

func run(args []string, stdin io.Reader) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	in := stdin
	if o.in != "-" {
		f, err := os.Open(o.in)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	keys, err := readKeys(in)
	if err != nil {
		return fmt.Errorf("read keys: %w", err)
	}

	var b *bloom.Builder
	if o.size > 0 {
		b = bloom.NewBuilderWithSize(uint32(o.size), uint32(o.k))
	} else {
		n := o.n
		if n == 0 {
			n = uint64(len(keys))
		}
		b = bloom.NewBuilder(n, o.fpRate)
	}
	for _, k := range keys {
		b.Add(k)
	}

	payload, err := b.Encode()
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	if err := os.WriteFile(o.out, payload, 0o644); err != nil {
		return err
	}

	f := b.Filter()
	fields := map[string]any{"keys": b.Len(), "bits": f.NumBits(), "k": f.K(), "out": o.out}

	if o.manifest != "" {
		sum, _, err := checksum.Compute(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		m, err := domain.EncodeManifest(sum)
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.manifest, m, 0o644); err != nil {
			return err
		}
		fields["sha256"] = sum.SHA256
		fields["manifest"] = o.manifest
	}

	log.Info(fields, "filter built")
	return nil
}
