// Package attribution turns raw transcript turns into speaker-labelled text.
//
// Speakers are inferred from the audio source channel only:
//
//   - microphone turns belong to the first roster entry (the local user), or "Me";
//   - system turns belong to the only other participant when there is exactly
//     one, otherwise to the generic "Them";
//   - any other tag is title-cased and matched against the roster, else "Unknown".
package attribution

import (
	"strings"
	"unicode"

	"github.com/mohammad-safakhou/notesync/models"
)

const (
	LocalSpeaker   = "Me"
	RemoteSpeakers = "Them"
	UnknownSpeaker = "Unknown"
)

// SpeakerStats accumulates what one speaker said.
type SpeakerStats struct {
	Words    int `json:"word_count"`
	Segments int `json:"segment_count"`
}

// Result is an attributed transcript.
type Result struct {
	Text string
	// Speakers in order of first appearance.
	Speakers []string
	Stats    map[string]SpeakerStats
}

// Words is the total word count across speakers.
func (r *Result) Words() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Stats {
		n += s.Words
	}
	return n
}

// Attribute labels each turn with a speaker and renders "{speaker}: {text}"
// blocks in turn order. Blank turns are dropped. It returns nil when turns is
// empty.
func Attribute(turns []models.TranscriptTurn, roster []string) *Result {
	if len(turns) == 0 {
		return nil
	}
	res := &Result{Stats: map[string]SpeakerStats{}}
	var b strings.Builder
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		speaker := Speaker(turn.Source, roster)
		st, seen := res.Stats[speaker]
		if !seen {
			res.Speakers = append(res.Speakers, speaker)
		}
		st.Words += len(strings.Fields(text))
		st.Segments++
		res.Stats[speaker] = st

		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	res.Text = b.String()
	return res
}

// Speaker resolves the label for a turn recorded on source.
func Speaker(source string, roster []string) string {
	switch source {
	case models.SourceMicrophone:
		if len(roster) > 0 {
			return roster[0]
		}
		return LocalSpeaker
	case models.SourceSystem:
		if len(roster) == 2 {
			return roster[1]
		}
		return RemoteSpeakers
	}
	if source == "" {
		source = "unknown"
	}
	tag := titleCase(source)
	for _, name := range roster {
		if name == tag {
			return name
		}
	}
	return UnknownSpeaker
}

// titleCase upper-cases the first letter of every letter run and lower-cases
// the rest, so "speaker_two" becomes "Speaker_Two".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToTitle(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}
