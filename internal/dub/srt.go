package dub

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// Cue is one subtitle entry with times relative to the start of the media.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

var (
	timelineRe = regexp.MustCompile(`(\d+):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d+):(\d{2}):(\d{2})[,.](\d{1,3})`)
	tagRe      = regexp.MustCompile(`<[^>]*>|\{\\[^}]*\}`)
)

// ParseSRT reads SubRip cues. Formatting tags are stripped, multi-line cue
// text is joined with spaces, and cues with no remaining text are dropped.
func ParseSRT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		cues    []Cue
		current *Cue
		text    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		body := strings.TrimSpace(strings.Join(text, " "))
		if body != "" {
			current.Text = body
			current.Index = len(cues) + 1
			cues = append(cues, *current)
		}
		current = nil
		text = nil
	}

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			// UTF-8 BOM from Windows subtitle editors.
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		trimmed := strings.TrimSpace(line)

		if m := timelineRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			start := srtTime(m[1], m[2], m[3], m[4])
			end := srtTime(m[5], m[6], m[7], m[8])
			current = &Cue{Start: start, End: end}
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		if current == nil {
			// Sequence number line (or stray text before the first cue).
			continue
		}
		text = append(text, tagRe.ReplaceAllString(trimmed, ""))
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("no cues found in subtitle file")
	}
	return cues, nil
}

func srtTime(h, m, s, ms string) time.Duration {
	toInt := func(v string) time.Duration {
		var n time.Duration
		for _, c := range v {
			n = n*10 + time.Duration(c-'0')
		}
		return n
	}
	millis := toInt(ms)
	// "5" means 500ms, "05" means 50ms.
	for i := len(ms); i < 3; i++ {
		millis *= 10
	}
	return toInt(h)*time.Hour + toInt(m)*time.Minute + toInt(s)*time.Second + millis*time.Millisecond
}
