package observer

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// Text renders enumeration results as an aligned table
type Text struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewText creates a Text observer writing to out
func NewText(out io.Writer) *Text {
	return &Text{out: out, now: time.Now}
}

func (t *Text) DidEnumerate(items []domain.MetadataRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
	for _, rec := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			kind(rec),
			displayName(rec),
			size(rec),
			humanize.RelTime(rec.ModTime, t.now(), "ago", "from now"),
			flags(rec),
		)
	}
	w.Flush()
}

func (t *Text) FinishEnumerating(next *domain.PageCursor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if next != nil {
		fmt.Fprintf(t.out, "-- more: page %s\n", next)
		return
	}
	fmt.Fprintln(t.out, "-- end")
}

func (t *Text) FinishEnumeratingWithError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "-- error: %v\n", err)
}

func (t *Text) DidDeleteItems(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		fmt.Fprintf(t.out, "- %s\n", id)
	}
}

func (t *Text) DidUpdate(items []domain.MetadataRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range items {
		fmt.Fprintf(t.out, "~ %s (%s)\n", rec.Path(), rec.FileID)
	}
}

func (t *Text) FinishEnumeratingChanges(anchor domain.SyncAnchor, moreComing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "-- anchor %s\n", anchor)
}

func kind(rec domain.MetadataRecord) string {
	if rec.IsDir {
		return "d"
	}
	return "f"
}

func displayName(rec domain.MetadataRecord) string {
	if rec.IsDir {
		return rec.Name + "/"
	}
	return rec.Name
}

func size(rec domain.MetadataRecord) string {
	if rec.IsDir {
		return "-"
	}
	return humanize.Bytes(uint64(rec.Size))
}

func flags(rec domain.MetadataRecord) string {
	var parts []string
	if rec.Favorite {
		parts = append(parts, "★")
	}
	if len(rec.Tags) > 0 {
		parts = append(parts, "#"+strings.Join(rec.Tags, ",#"))
	}
	if rec.Session != "" {
		parts = append(parts, "busy:"+rec.Session)
	}
	return strings.Join(parts, " ")
}
