package dataset

import "strings"

// Stats summarizes captioning progress.
type Stats struct {
	Total            int `json:"total"`
	Captioned        int `json:"captioned"`
	ToCaption        int `json:"toCaption"`
	CaptionedPercent int `json:"captionedPercent"`
	LyricsDone       int `json:"lyricsDone"`
	LyricsLeft       int `json:"lyricsLeft"`
	LyricsPercent    int `json:"lyricsPercent"`
	Unsaved          int `json:"unsaved"`
}

// Stats counts captioned records and records with lyrics. Percentages are
// rounded half up.
func (s *Session) Stats() Stats {
	st := Stats{Total: len(s.entries)}
	for _, e := range s.entries {
		if e.current.Labeled() {
			st.Captioned++
		}
		if strings.TrimSpace(e.current.Lyrics) != "" {
			st.LyricsDone++
		}
		if e.dirty() {
			st.Unsaved++
		}
	}
	st.ToCaption = st.Total - st.Captioned
	st.LyricsLeft = st.Total - st.LyricsDone
	st.CaptionedPercent = percent(st.Captioned, st.Total)
	st.LyricsPercent = percent(st.LyricsDone, st.Total)
	return st
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(part)*100.0/float64(total) + 0.5)
}
