// Package cli handles cmd line input for DBG and testing the match
// pipeline without an editor attached.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/bastiangx/popmux/pkg/merge"
)

// InputHandler reads lines from stdin and runs each through the match
// processor as if it were the typed text of one edit cycle. Words from
// earlier lines feed the candidate pool, so the session behaves like a
// tiny buffer-word source.
type InputHandler struct {
	proc     *merge.Processor
	filetype string
	limit    int
	words    *patricia.Trie
	tick     int64
}

// NewInputHandler handles initialization of the InputHandler with basic parameters
func NewInputHandler(proc *merge.Processor, filetype string, limit int) *InputHandler {
	if proc == nil {
		proc = merge.NewProcessor(nil)
	}
	return &InputHandler{
		proc:     proc,
		filetype: filetype,
		limit:    limit,
		words:    patricia.NewTrie(),
	}
}

// Start begins the interface loop. Terminates when stdin closes.
func (h *InputHandler) Start() error {
	log.Print("popmux CLI [DBG]")
	reader := bufio.NewReader(os.Stdin)
	log.Print("type something and press Enter to see candidate processing (Ctrl+C to exit):")

	for {
		log.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		h.handleInput(line)
	}
}

// handleInput treats one line as typed text: derives the word start
// column, collects candidates from earlier lines, and prints whatever
// the processor lets through.
func (h *InputHandler) handleInput(line string) {
	h.tick++
	ctx := merge.Context{
		Typed:    line,
		Col:      len(line) + 1,
		Filetype: h.filetype,
		Tick:     h.tick,
	}
	startcol := merge.WordStart(line)
	prefix := line[startcol-1:]

	raw := h.lookup(prefix)
	h.remember(line)

	if prefix == "" {
		log.Warn("cursor is not inside a word, nothing to complete")
		return
	}

	src := merge.SourceDescriptor{Name: "repl", Abbreviation: "repl"}
	start := time.Now()
	matches := h.proc.Process(src, ctx, startcol, raw)
	elapsed := time.Since(start)
	log.Debugf("Took [ %v ] for prefix '%s'", elapsed, prefix)

	if len(matches) == 0 {
		log.Warnf("No candidates for prefix: '%s'", prefix)
		return
	}
	if h.limit > 0 && len(matches) > h.limit {
		matches = matches[:h.limit]
	}

	log.Printf("%d candidates at col %d for prefix '%s':", len(matches), startcol, prefix)
	for i, m := range matches {
		clWord := fmt.Sprintf("\033[38;5;75m%s\033[0m", m.Word)
		log.Printf("%2d. %-40s %s", i+1, clWord, m.Menu)
	}
}

func (h *InputHandler) lookup(prefix string) []any {
	var raw []any
	lower := strings.ToLower(prefix)
	h.words.VisitSubtree(patricia.Prefix(lower), func(p patricia.Prefix, item patricia.Item) error {
		raw = append(raw, item.(string))
		return nil
	})
	return raw
}

func (h *InputHandler) remember(line string) {
	start := -1
	for i := 0; i <= len(line); i++ {
		if i < len(line) && merge.IsWordChar(line[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			word := line[start:i]
			h.words.Insert(patricia.Prefix(strings.ToLower(word)), word)
			start = -1
		}
	}
}
