package importer

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
)

const (
	defaultExpectedRecords = 1_000_000
	defaultFalsePositive   = 0.001
	maxLineBytes           = 1 << 20
	progressEvery          = 100_000
)

// Options tunes an Importer.
type Options struct {
	// ExpectedRecords sizes the per-file bloom filters.
	ExpectedRecords uint
	// FalsePositiveRate is the target bloom filter error rate. False
	// positives only cost an exact comparison, never a lost record.
	FalsePositiveRate float64
}

// Reject is an input line that was not imported.
type Reject struct {
	File   string
	Line   int
	Code   string
	Reason string
}

// Report summarizes an import run.
type Report struct {
	Imported   int
	Invalid    []Reject
	Duplicates []Reject
}

// Importer loads sellables from gzip-compressed JSON Lines files, one Record
// per line. A code that appears more than once, within a file or across
// files, is imported from its first occurrence in argument order; later
// occurrences are reported as duplicates.
type Importer struct {
	w        Writer
	validate *validator.Validate
	opts     Options
}

// New creates an Importer writing to w.
func New(w Writer, opts Options) *Importer {
	if opts.ExpectedRecords == 0 {
		opts.ExpectedRecords = defaultExpectedRecords
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = defaultFalsePositive
	}
	return &Importer{w: w, validate: NewValidator(), opts: opts}
}

type position struct {
	file int
	line int
}

// Import streams files three times: once to build a bloom filter of codes
// per file, once to collect the exact positions of codes the filters flag as
// possibly repeated, and once to write every valid first occurrence.
func (im *Importer) Import(ctx context.Context, files []string) (*Report, error) {
	lg := zctx.From(ctx)
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "check file %s", f)
		}
	}

	lg.Info("Building code filters", zap.Int("files", len(files)))
	filters, repeated, err := im.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build filters")
	}

	lg.Info("Locating duplicate codes")
	dupes, err := im.findDuplicates(ctx, files, filters, repeated)
	if err != nil {
		return nil, errors.Wrap(err, "find duplicates")
	}

	report := &Report{}
	for i, f := range files {
		if err := im.load(ctx, i, f, dupes, report); err != nil {
			return report, errors.Wrapf(err, "import %s", f)
		}
	}

	lg.Info("Import finished",
		zap.Int("imported", report.Imported),
		zap.Int("invalid", len(report.Invalid)),
		zap.Int("duplicates", len(report.Duplicates)),
	)
	return report, nil
}

// buildFilters creates one bloom filter per file, concurrently. It also
// returns, per file, the codes its own filter had already seen, which are
// the in-file repeat candidates.
func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, []map[string]struct{}, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	repeated := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.opts.ExpectedRecords, im.opts.FalsePositiveRate)
			seen := make(map[string]struct{})
			if err := im.scan(ctx, path, func(_ int, s catalog.Sellable, err error) error {
				if err != nil {
					return nil
				}
				if filter.TestAndAddString(s.SKU()) {
					seen[s.SKU()] = struct{}{}
				}
				return nil
			}); err != nil {
				return err
			}
			filters[i] = filter
			repeated[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return filters, repeated, nil
}

// findDuplicates rescans every file and records the exact positions of codes
// flagged by another file's filter or repeated within the file. Every
// position after the first of a code is a duplicate.
func (im *Importer) findDuplicates(
	ctx context.Context,
	files []string,
	filters []*bloom.BloomFilter,
	repeated []map[string]struct{},
) (map[position]position, error) {
	candidates := make([]map[string][]int, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string][]int)
			if err := im.scan(ctx, path, func(line int, s catalog.Sellable, err error) error {
				if err != nil {
					return nil
				}
				code := s.SKU()
				if _, ok := repeated[i][code]; ok || testOthers(filters, i, code) {
					found[code] = append(found[code], line)
				}
				return nil
			}); err != nil {
				return err
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string][]position)
	for i, found := range candidates {
		for code, lines := range found {
			for _, line := range lines {
				merged[code] = append(merged[code], position{file: i, line: line})
			}
		}
	}

	// Maps each duplicate to the occurrence that was kept.
	dupes := make(map[position]position)
	for _, positions := range merged {
		if len(positions) < 2 {
			continue
		}
		slices.SortFunc(positions, func(a, b position) int {
			return cmp.Or(cmp.Compare(a.file, b.file), cmp.Compare(a.line, b.line))
		})
		for _, p := range positions[1:] {
			dupes[p] = positions[0]
		}
	}
	return dupes, nil
}

func testOthers(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// load writes the valid, non-duplicate records of one file.
func (im *Importer) load(ctx context.Context, idx int, path string, dupes map[position]position, report *Report) error {
	lg := zctx.From(ctx)
	name := filepath.Base(path)

	return im.scan(ctx, path, func(line int, s catalog.Sellable, err error) error {
		if err != nil {
			report.Invalid = append(report.Invalid, Reject{File: name, Line: line, Reason: err.Error()})
			return nil
		}
		if first, ok := dupes[position{file: idx, line: line}]; ok {
			report.Duplicates = append(report.Duplicates, Reject{
				File:   name,
				Line:   line,
				Code:   s.SKU(),
				Reason: fmt.Sprintf("duplicate of file %d line %d", first.file+1, first.line),
			})
			return nil
		}
		if err := write(ctx, im.w, s); err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		report.Imported++
		if report.Imported%progressEvery == 0 {
			lg.Info("Import progress", zap.Int("imported", report.Imported))
		}
		return nil
	})
}

// scan opens a gzip-compressed JSON Lines file and calls fn for every
// non-blank line with the parsed sellable or the reason it is invalid. Line
// numbers start at 1.
func (im *Importer) scan(ctx context.Context, path string, fn func(line int, s catalog.Sellable, err error) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var rec Record
		if err := rec.Decode(jx.DecodeBytes(raw)); err != nil {
			if err := fn(line, nil, errors.Wrap(err, "decode")); err != nil {
				return err
			}
			continue
		}
		s, err := rec.Sellable(im.validate)
		if err := fn(line, s, err); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
