package merge

import "sort"

// MatchRecord is one completion candidate. Word is the insert text and is
// the only required field; everything else is presentation metadata.
// Fields the source sent that we do not interpret ride along in Extras.
type MatchRecord struct {
	Word   string         `msgpack:"word" json:"word"`
	Abbr   string         `msgpack:"abbr,omitempty" json:"abbr,omitempty"`
	Menu   string         `msgpack:"menu,omitempty" json:"menu,omitempty"`
	Info   string         `msgpack:"info,omitempty" json:"info,omitempty"`
	Extras map[string]any `msgpack:"extras,omitempty" json:"extras,omitempty"`
}

// Normalize converts a raw candidate into a MatchRecord. Sources may send
// bare strings or maps; map input is deep-copied so later padding never
// mutates state the source still holds.
func Normalize(raw any) (MatchRecord, bool) {
	switch v := raw.(type) {
	case string:
		return MatchRecord{Word: v}, true
	case MatchRecord:
		rec := v
		rec.Extras = copyMap(v.Extras)
		return rec, true
	case map[string]any:
		var rec MatchRecord
		for key, val := range v {
			s, isString := val.(string)
			switch {
			case key == "word" && isString:
				rec.Word = s
			case key == "abbr" && isString:
				rec.Abbr = s
			case key == "menu" && isString:
				rec.Menu = s
			case key == "info" && isString:
				rec.Info = s
			default:
				if rec.Extras == nil {
					rec.Extras = make(map[string]any)
				}
				rec.Extras[key] = copyValue(val)
			}
		}
		return rec, rec.Word != ""
	default:
		return MatchRecord{}, false
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// Ranker orders one source's processed candidates in place. It is a
// replaceable strategy; smarter sources can plug in relevance scoring
// without touching the merge protocol.
type Ranker func(matches []MatchRecord)

// ByWordLength is the default ranking: shortest word first, original
// relative order preserved among equal lengths.
func ByWordLength(matches []MatchRecord) {
	sort.SliceStable(matches, func(i, j int) bool {
		return len(matches[i].Word) < len(matches[j].Word)
	})
}
