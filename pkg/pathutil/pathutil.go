// Package pathutil collects the path, token, and filter primitives
// shared by the control-plane client, the file-list builder, and every
// task handler: keyword substitution, ASCII checks, rsync-partial
// detection, integer-set range condensation, glob-based include/
// exclude/ignore resolution, and purge-interval phrase parsing.
package pathutil

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Context carries the values keywordReplace substitutes into a
// template. Fields left zero simply don't match their token; CruiseID
// and LoweringID are handled specially since an unresolved
// {loweringID} in a lowering-agnostic context means "skip this
// template" rather than "error".
type Context struct {
	CruiseID            string
	LoweringID          string
	LoweringDataBaseDir string
	Now                 time.Time
}

var rsyncPartialRE = regexp.MustCompile(`^\..+\.[A-Za-z0-9_]{6}$`)

// dateTokenGlobs gives the glob character class each date token
// expands to. These are glob patterns, not literal zero-padded
// numbers, because the destination templates feed doublestar matching
// against directories that may predate the current run.
var dateTokenGlobs = map[string]string{
	"{YYYY}": "[12][0-9][0-9][0-9]",
	"{YY}":   "[0-9][0-9]",
	"{mm}":   "[01][0-9]",
	"{DD}":   "[0-3][0-9]",
	"{HH}":   "[0-2][0-9]",
	"{MM}":   "[0-5][0-9]",
	"{SS}":   "[0-5][0-9]",
}

// Unresolved is a sentinel string for a template that still references
// {loweringID} while ctx.LoweringID is empty. KeywordReplace does not
// return it; it reports that case as ("", false).
var Unresolved = "\x00unresolved\x00"

// KeywordReplace performs left-to-right substitution of {cruiseID},
// {loweringDataBaseDir}, {loweringID}, and the seven date tokens. It
// strips a trailing "/" unless the whole result is "/". If the
// template contains {loweringID} and ctx.LoweringID is empty, it
// returns ("", false) so the caller can skip rather than emit a path
// with a literal unresolved token in it.
func KeywordReplace(template string, ctx Context) (string, bool) {
	if strings.Contains(template, "{loweringID}") && ctx.LoweringID == "" {
		return "", false
	}

	result := template
	result = strings.ReplaceAll(result, "{cruiseID}", ctx.CruiseID)
	result = strings.ReplaceAll(result, "{loweringID}", ctx.LoweringID)
	result = strings.ReplaceAll(result, "{loweringDataBaseDir}", ctx.LoweringDataBaseDir)

	for token, glob := range dateTokenGlobs {
		result = strings.ReplaceAll(result, token, glob)
	}

	if result != "/" {
		result = strings.TrimSuffix(result, "/")
	}

	return result, true
}

// IsASCII reports whether every byte of s fits in U+0000..U+007F.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

// IsRsyncPartial reports whether name looks like an rsync in-progress
// partial file: a leading dot, some stem, and a 6-character
// alphanumeric/underscore suffix.
func IsRsyncPartial(name string) bool {
	return rsyncPartialRE.MatchString(name)
}

// FilterVerdict is the result of applying a path against the three
// glob lists a collection-system or cruise-data transfer carries.
type FilterVerdict int

const (
	// VerdictInclude means the path should be transferred.
	VerdictInclude FilterVerdict = iota
	// VerdictExclude means the path matched an exclude glob, or
	// matched no include glob when include globs are present.
	VerdictExclude
	// VerdictDrop means an ignore glob matched; the path is invisible
	// to the rest of the pipeline, not even recorded as excluded.
	VerdictDrop
)

// ApplyFilters resolves path (relative to the transfer's source root)
// against the ignore, include, and exclude glob lists. Ignore wins
// outright. Otherwise the path is included only if it matches an
// include glob and no exclude glob; an include-and-exclude match
// resolves to exclude, matching the source implementation's
// conservative bias.
func ApplyFilters(path string, include, exclude, ignore []string) FilterVerdict {
	if anyMatch(ignore, path) {
		return VerdictDrop
	}

	included := anyMatch(include, path)
	excluded := anyMatch(exclude, path)

	switch {
	case included && excluded:
		return VerdictExclude
	case included:
		return VerdictInclude
	default:
		return VerdictExclude
	}
}

func anyMatch(globs []string, path string) bool {
	for _, g := range globs {
		if g == "" {
			continue
		}
		ok, err := doublestar.Match(g, path)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// CondenseToRanges compresses a set of integers (e.g. job IDs, line
// numbers) into the shortest ascending list of "n" and "a-b" tokens
// whose expansion reproduces the input set exactly.
func CondenseToRanges(values []int) []string {
	if len(values) == 0 {
		return nil
	}

	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	var out []string
	start := sorted[0]
	prev := sorted[0]

	flush := func(end int) {
		if start == end {
			out = append(out, strconv.Itoa(start))
		} else {
			out = append(out, strconv.Itoa(start)+"-"+strconv.Itoa(end))
		}
	}

	for _, v := range sorted[1:] {
		if v == prev {
			continue // dedupe
		}
		if v == prev+1 {
			prev = v
			continue
		}
		flush(prev)
		start, prev = v, v
	}
	flush(prev)

	return out
}

var purgeIntervalTokenRE = regexp.MustCompile(`(?i)(\d+)\s*(second|minute|hour|day|week)s?`)

// ParsePurgeInterval parses phrases like "12 hours" or "3 days 6 hours"
// into a time.Duration, per spec §4.8. Recognized units are second,
// minute, hour, day, and week (singular or plural); an empty phrase
// yields zero with no error. An unrecognized unit, or a phrase with no
// recognizable tokens at all, is an error.
func ParsePurgeInterval(phrase string) (time.Duration, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return 0, nil
	}

	matches := purgeIntervalTokenRE.FindAllStringSubmatch(phrase, -1)
	if matches == nil {
		return 0, fmt.Errorf("pathutil: unrecognized purge interval %q", phrase)
	}

	var total time.Duration
	consumed := 0
	for _, m := range matches {
		consumed += len(m[0])
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("pathutil: unrecognized purge interval %q: %w", phrase, err)
		}
		var unit time.Duration
		switch strings.ToLower(m[2]) {
		case "second":
			unit = time.Second
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		default:
			return 0, fmt.Errorf("pathutil: unrecognized purge interval unit %q in %q", m[2], phrase)
		}
		total += time.Duration(n) * unit
	}

	// Anything left over after stripping matched tokens and whitespace
	// is an unrecognized unit word (e.g. "12 fortnights").
	stripped := purgeIntervalTokenRE.ReplaceAllString(phrase, "")
	if strings.TrimSpace(stripped) != "" {
		return 0, fmt.Errorf("pathutil: unrecognized purge interval %q", phrase)
	}

	return total, nil
}
