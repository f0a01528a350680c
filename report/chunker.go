package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultMaxChunkSize = 1500
	DefaultOverlap      = 200

	// minChunkLength drops headers, page footers and other noise fragments.
	minChunkLength = 20
	// minPreambleLength is the smallest text ahead of a table kept as its own chunk.
	minPreambleLength = 50
)

// chunkNamespace seeds the name-based chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("healthcheck-agent/report/chunk"))

// Chunk is a labeled slice of a normalized report. StartChar and EndChar are
// byte offsets into the normalized text the chunk was cut from.
type Chunk struct {
	ID         string       `json:"id"`
	Content    string       `json:"content"`
	Section    SectionLabel `json:"section"`
	ChunkIndex int          `json:"chunkIndex"`
	StartChar  int          `json:"startChar"`
	EndChar    int          `json:"endChar"`
}

// ChunkOptions bounds chunk sizes. A non-positive MaxChunkSize selects the
// default; a negative Overlap is treated as zero.
type ChunkOptions struct {
	MaxChunkSize int
	Overlap      int
}

// DefaultChunkOptions returns the 1500/200 configuration used for uploads.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MaxChunkSize: DefaultMaxChunkSize, Overlap: DefaultOverlap}
}

func (o ChunkOptions) sanitized() ChunkOptions {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	return o
}

var (
	bulletLine     = regexp.MustCompile(`^(?:[-*\x{2022}\x{2023}\x{25AA}\x{25CF}\x{25E6}]|\d{1,3}[.)])\s+[A-Z]`)
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
)

// naturalBreaks are tried in order when a window has to be cut. keep is how
// many bytes of the separator stay with the chunk being closed.
var naturalBreaks = []struct {
	sep  string
	keep int
}{
	{"\n\n", 0},
	{". ", 1},
	{"\n", 0},
	{", ", 1},
}

// ChunkText segments normalized text into ordered, labeled chunks. It never
// fails: text that yields no regular chunk comes back as a single General
// chunk holding up to twice the maximum size. Empty text yields nil.
func ChunkText(text string, opts ChunkOptions) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c := &chunker{text: text, opts: opts.sanitized()}
	for _, seg := range segmentText(text) {
		start, end := trimBounds(text, seg.start, seg.end)
		if end-start < minChunkLength {
			continue
		}
		body := text[start:end]
		label := ClassifySection(body)
		if len(body) <= c.opts.MaxChunkSize {
			c.emit(body, label, start, end)
			continue
		}
		c.splitOversized(start, end, label)
	}

	if len(c.chunks) == 0 {
		limit := runeBoundary(text, 2*c.opts.MaxChunkSize)
		start, end := trimBounds(text, 0, limit)
		c.append(text[start:end], SectionGeneral, start, end)
	}
	return c.chunks
}

type segment struct {
	start int
	end   int
}

// segmentText prefers known section headers, then bullet items, then
// blank-line paragraphs.
func segmentText(text string) []segment {
	if segs := splitBeforeLines(text, isMajorHeaderLine); len(segs) >= 2 {
		return segs
	}
	if segs := splitBeforeLines(text, isBulletLine); len(segs) >= 2 {
		return segs
	}
	return splitParagraphs(text)
}

func isBulletLine(line string) bool {
	return bulletLine.MatchString(strings.TrimSpace(line))
}

// splitBeforeLines cuts text at every newline whose following line satisfies
// match. The newline itself belongs to neither side. Blank segments are dropped.
func splitBeforeLines(text string, match func(string) bool) []segment {
	var segs []segment
	prev := 0
	for pos := 0; pos < len(text); {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		if lineEnd < 0 {
			lineEnd = len(text)
		} else {
			lineEnd += pos
		}
		if pos > 0 && match(text[pos:lineEnd]) {
			segs = appendSegment(segs, text, prev, pos-1)
			prev = pos
		}
		pos = lineEnd + 1
	}
	return appendSegment(segs, text, prev, len(text))
}

func splitParagraphs(text string) []segment {
	var segs []segment
	prev := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		segs = appendSegment(segs, text, prev, loc[0])
		prev = loc[1]
	}
	return appendSegment(segs, text, prev, len(text))
}

func appendSegment(segs []segment, text string, start, end int) []segment {
	if end <= start || strings.TrimSpace(text[start:end]) == "" {
		return segs
	}
	return append(segs, segment{start: start, end: end})
}

type chunker struct {
	text   string
	opts   ChunkOptions
	chunks []Chunk
}

// emit records a chunk unless it is too short to be useful.
func (c *chunker) emit(content string, label SectionLabel, start, end int) {
	if len(content) < minChunkLength {
		return
	}
	c.append(content, label, start, end)
}

func (c *chunker) append(content string, label SectionLabel, start, end int) {
	if end <= start {
		return
	}
	idx := len(c.chunks)
	c.chunks = append(c.chunks, Chunk{
		ID:         chunkID(idx, start, end, content),
		Content:    content,
		Section:    label,
		ChunkIndex: idx,
		StartChar:  start,
		EndChar:    end,
	})
}

func chunkID(idx, start, end int, content string) string {
	name := fmt.Sprintf("%d:%d:%d:%s", idx, start, end, content)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func (c *chunker) splitOversized(start, end int, label SectionLabel) {
	body := c.text[start:end]
	if ContainsTable(body) {
		if at := tableStart(body); at >= 0 {
			c.splitTable(start, end, start+at, label)
			return
		}
	}
	c.splitWindow(start, end, label)
}

// splitTable emits the text ahead of a table and the table body separately.
// Bodies larger than twice the maximum are cut into row groups.
func (c *chunker) splitTable(start, end, tableAt int, label SectionLabel) {
	limit := c.opts.MaxChunkSize

	if tableAt > start {
		ps, pe := trimBounds(c.text, start, tableAt)
		if pe-ps > minPreambleLength {
			if pe-ps <= limit {
				c.emit(c.text[ps:pe], label, ps, pe)
			} else {
				c.splitWindow(ps, pe, label)
			}
		}
	}

	ts, te := trimBounds(c.text, tableAt, end)
	if te <= ts {
		return
	}
	tableLabel := label.TableData()
	if te-ts <= 2*limit {
		c.emit(c.text[ts:te], tableLabel, ts, te)
		return
	}
	c.splitTableRows(ts, te, tableLabel)
}

// splitTableRows groups table lines into parts of at most MaxChunkSize bytes.
// Every part after the first repeats the caption line so it can be read on
// its own.
func (c *chunker) splitTableRows(start, end int, label SectionLabel) {
	limit := c.opts.MaxChunkSize
	body := c.text[start:end]
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		c.splitWindow(start, end, label)
		return
	}
	caption := strings.TrimSpace(body[:nl])

	partStart, partEnd := start, start+nl
	rows := 0
	first := true

	size := func() int {
		if first {
			return partEnd - partStart
		}
		return len(caption) + 1 + partEnd - partStart
	}
	flush := func() {
		rs, re := trimBounds(c.text, partStart, partEnd)
		if re > rs {
			content := c.text[rs:re]
			if !first {
				content = caption + "\n" + content
			}
			if len(content) > 2*limit {
				c.splitWindow(rs, re, label)
			} else {
				c.emit(content, label, rs, re)
			}
		}
		first = false
	}

	for pos := start + nl + 1; pos < end; {
		lineEnd := strings.IndexByte(c.text[pos:end], '\n')
		if lineEnd < 0 {
			lineEnd = end
		} else {
			lineEnd += pos
		}
		if rows > 0 && size()+1+(lineEnd-pos) > limit {
			flush()
			partStart, partEnd, rows = pos, lineEnd, 1
		} else {
			partEnd = lineEnd
			rows++
		}
		pos = lineEnd + 1
	}
	flush()
}

// splitWindow slides a MaxChunkSize window over text[start:end], preferring to
// cut on a paragraph, sentence, line or clause boundary in the last two thirds
// of the window. Consecutive parts share Overlap bytes.
func (c *chunker) splitWindow(start, end int, label SectionLabel) {
	s := c.text[start:end]
	limit, overlap := c.opts.MaxChunkSize, c.opts.Overlap

	for pos := 0; pos < len(s); {
		stop := pos + limit
		if stop >= len(s) {
			stop = len(s)
		} else {
			stop = naturalCut(s, pos, runeBoundary(s, stop))
		}

		cs, ce := trimBounds(s, pos, stop)
		if ce > cs {
			c.emit(s[cs:ce], label, start+cs, start+ce)
		}
		if stop >= len(s) {
			return
		}

		next := runeBoundary(s, stop-overlap)
		if next <= pos {
			next = stop
		}
		pos = next
	}
}

// naturalCut returns the preferred end of the window s[pos:stop].
func naturalCut(s string, pos, stop int) int {
	window := s[pos:stop]
	floor := len(window) / 3
	for _, b := range naturalBreaks {
		i := strings.LastIndex(window, b.sep)
		if i > 0 && i >= floor {
			return pos + i + b.keep
		}
	}
	return stop
}
