package vault

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mohammad-safakhou/notesync/internal/attribution"
	"github.com/mohammad-safakhou/notesync/models"
)

const (
	untitledMeeting  = "Untitled Meeting"
	untitledFilename = "Untitled"
	// room kept for the date prefix and extension
	filenameReserve = 20
)

var dashRuns = regexp.MustCompile(`[-\s]+`)

// Note is everything needed to render one document.
type Note struct {
	Document     models.Document
	Participants []string
	GroupName    string
	GroupID      string
	// Transcript is nil when none could be fetched or it had no readable text.
	Transcript *attribution.Result
}

// Rendered is a note ready to be written.
type Rendered struct {
	Content  string
	Title    string
	Date     string
	Filename string
}

// Render builds the note text and its file name.
func (w *Writer) Render(n Note) Rendered {
	title := n.Document.DisplayTitle(untitledMeeting)
	date := n.Document.MeetingDate()

	var b strings.Builder
	w.writeFrontmatter(&b, n, title, date)

	fmt.Fprintf(&b, "# %s\n\n", title)
	if n.GroupName != "" && w.vault.IncludeMeetingSeries {
		fmt.Fprintf(&b, "**Meeting Series:** %s\n\n", n.GroupName)
	}
	if n.Transcript != nil && n.Transcript.Text != "" {
		b.WriteString(w.docs.TranscriptSectionHeader)
		b.WriteString("\n\n")
		b.WriteString(n.Transcript.Text)
		b.WriteString("\n\n")
		if w.vault.IncludeSpeakerSummary {
			writeSpeakingSummary(&b, n.Transcript)
		}
	} else {
		b.WriteString(w.docs.NotesSectionHeader)
		b.WriteString("\n\n")
		b.WriteString(w.docs.NoTranscriptMessage)
		b.WriteString("\n\n")
	}

	return Rendered{
		Content:  b.String(),
		Title:    title,
		Date:     date,
		Filename: w.SafeFilename(n.Document.Title, date),
	}
}

// writeFrontmatter emits the configured fields in order. Empty values are left out.
func (w *Writer) writeFrontmatter(b *strings.Builder, n Note, title, date string) {
	b.WriteString("---\n")
	for _, field := range w.vault.FrontmatterFields {
		switch field {
		case "title":
			writeScalar(b, field, title)
		case "date":
			writeScalar(b, field, date)
		case "participants":
			writeList(b, field, n.Participants)
		case "granola_id", "id":
			writeScalar(b, field, n.Document.ID)
		case "created_at":
			writeScalar(b, field, n.Document.CreatedAtRaw)
		case "updated_at":
			writeScalar(b, field, n.Document.UpdatedAtRaw)
		case "source":
			writeScalar(b, field, w.vault.SourceTag)
		case "document_list":
			writeScalar(b, field, n.GroupName)
		case "document_list_id":
			writeScalar(b, field, n.GroupID)
		default:
			w.logger.WithField("field", field).Debug("ignoring unknown frontmatter field")
		}
	}
	b.WriteString("---\n\n")
}

func writeScalar(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", key, quote(value))
}

func writeList(b *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		return
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	fmt.Fprintf(b, "%s: [%s]\n", key, strings.Join(quoted, ", "))
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// quote renders a YAML double-quoted scalar.
func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}

func writeSpeakingSummary(b *strings.Builder, r *attribution.Result) {
	if len(r.Stats) == 0 {
		return
	}
	speakers := append([]string(nil), r.Speakers...)
	sort.SliceStable(speakers, func(i, j int) bool {
		return r.Stats[speakers[i]].Words > r.Stats[speakers[j]].Words
	})
	b.WriteString("### Speaking Summary\n\n")
	for _, s := range speakers {
		st := r.Stats[s]
		fmt.Fprintf(b, "- **%s**: %d words in %d segments\n", s, st.Words, st.Segments)
	}
	b.WriteString("\n")
}

// SafeFilename strips unsafe characters from title, joins words with dashes
// and applies the configured filename format.
func (w *Writer) SafeFilename(title, date string) string {
	if strings.TrimSpace(title) == "" {
		title = untitledFilename
	}
	safe := strings.TrimSpace(w.unsafe.ReplaceAllString(title, ""))
	safe = dashRuns.ReplaceAllString(safe, "-")
	if limit := w.docs.MaxFilenameLength - filenameReserve; utf8.RuneCountInString(safe) > limit {
		safe = string([]rune(safe)[:limit])
	}

	format := w.docs.FilenameFormat
	if date == "" || !strings.Contains(format, "{date}") {
		format = strings.ReplaceAll(format, "{date}-", "")
	}
	return strings.NewReplacer("{date}", date, "{title}", safe).Replace(format)
}
