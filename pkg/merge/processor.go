package merge

import "strings"

// defaultInfoCutoff is the longest info text still short enough to be
// promoted into the popup menu column.
const defaultInfoCutoff = 70

// Processor turns one source's raw candidate list into a normalized,
// annotated, filtered and ranked list. It holds only configuration,
// never state: identical inputs always produce identical output.
type Processor struct {
	rank       Ranker
	infoCutoff int
}

// NewProcessor builds a processor with the given ranking strategy.
// A nil ranker selects ByWordLength.
func NewProcessor(rank Ranker) *Processor {
	if rank == nil {
		rank = ByWordLength
	}
	return &Processor{rank: rank, infoCutoff: defaultInfoCutoff}
}

// SetInfoCutoff overrides the menu annotation length limit.
func (p *Processor) SetInfoCutoff(n int) {
	if n > 0 {
		p.infoCutoff = n
	}
}

// Process filters and ranks raw candidates against the prefix the source
// completes from, typed[startcol-1:]. Candidates whose word does not share
// the prefix (case folded) are dropped, matching the popup's own filtering
// so that merge work is never wasted on entries the editor would hide.
func (p *Processor) Process(src SourceDescriptor, ctx Context, startcol int, raw []any) []MatchRecord {
	if startcol < 1 || startcol-1 > len(ctx.Typed) {
		return nil
	}
	prefix := ctx.Typed[startcol-1:]

	result := make([]MatchRecord, 0, len(raw))
	for _, item := range raw {
		rec, ok := Normalize(item)
		if !ok {
			continue
		}
		p.annotate(&rec, src)
		if !hasFoldedPrefix(rec.Word, prefix) {
			continue
		}
		result = append(result, rec)
	}

	p.rank(result)
	return result
}

// annotate derives the popup menu column when the source left it blank.
// Short info text is promoted, tagged with the source's abbreviation when
// one exists; otherwise the abbreviation alone identifies the source.
func (p *Processor) annotate(rec *MatchRecord, src SourceDescriptor) {
	if rec.Menu != "" {
		return
	}
	if rec.Info != "" && len(rec.Info) < p.infoCutoff {
		if src.Abbreviation != "" {
			rec.Menu = src.Abbreviation + " :" + rec.Info
		} else {
			rec.Menu = rec.Info
		}
		return
	}
	rec.Menu = src.Abbreviation
}

// hasFoldedPrefix reports whether word, truncated to the prefix's length,
// equals the prefix under case folding.
func hasFoldedPrefix(word, prefix string) bool {
	if len(word) < len(prefix) {
		return false
	}
	return strings.EqualFold(word[:len(prefix)], prefix)
}
