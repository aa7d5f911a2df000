// Package guess scores free-text guesses against a track.
package guess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/osa030/muser/internal/domain/track"
)

// DefaultThreshold is the minimum similarity counted as a match.
const DefaultThreshold = 0.85

var (
	// Remaster suffixes: "- 2011 Remaster", "(Remastered 2023)", "[Remastered]"
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s+-\s+\d{4}\s+remaster(ed)?\b.*$`),
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),
		regexp.MustCompile(`\s+-\s+remaster(ed)?(\s+version)?\b.*$`),
		regexp.MustCompile(`\s*\([^)]*remaster[^)]*\)`),
		regexp.MustCompile(`\s*\[[^\]]*remaster[^\]]*\]`),
	}

	// Version and featuring suffixes: "(Radio Edit)", "- Live", "(feat. X)"
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\([^)]*version\)`),
		regexp.MustCompile(`\s*\([^)]*edit\)`),
		regexp.MustCompile(`\s*\(live[^)]*\)`),
		regexp.MustCompile(`\s+-\s+live\b.*$`),
		regexp.MustCompile(`\s+-\s+radio\s+edit\b.*$`),
		regexp.MustCompile(`\s+-\s+single\s+version\b.*$`),
		regexp.MustCompile(`\s*[\(\[](feat|ft)\.?\s[^\)\]]*[\)\]]`),
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// NormalizeTitle strips remaster and version details, punctuation and case.
func NormalizeTitle(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	return cleanup(normalized)
}

// NormalizeName folds case, punctuation and whitespace of an artist or album name.
func NormalizeName(name string) string {
	return cleanup(strings.ToLower(name))
}

func cleanup(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		if r == '&' {
			return r
		}
		return ' '
	}, s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Result reports which fields of a track a guess matched.
type Result struct {
	Title  bool    `json:"title"`
	Artist bool    `json:"artist"`
	Album  bool    `json:"album"`
	Score  float64 `json:"score"` // Best similarity across fields, 0 to 1
}

// Correct reports whether the title was guessed.
func (r Result) Correct() bool {
	return r.Title
}

// Scorer compares guesses against tracks.
type Scorer struct {
	threshold float64
}

// NewScorer creates a scorer. A threshold outside (0, 1] uses DefaultThreshold.
func NewScorer(threshold float64) *Scorer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Scorer{threshold: threshold}
}

// Match scores guess against the title, artists and album of t.
func (s *Scorer) Match(guess string, t track.Track) Result {
	var res Result

	titleGuess := NormalizeTitle(guess)
	if titleGuess == "" {
		return res
	}
	nameGuess := NormalizeName(guess)

	titleScore := max(
		Similarity(titleGuess, NormalizeTitle(t.Title)),
		Similarity(titleGuess, NormalizeTitle(t.TitleShort)),
	)
	res.Title = titleScore >= s.threshold

	artistScore := Similarity(nameGuess, NormalizeName(t.Artist.Name))
	for _, c := range t.Contributors {
		artistScore = max(artistScore, Similarity(nameGuess, NormalizeName(c.Name)))
	}
	res.Artist = artistScore >= s.threshold

	albumScore := Similarity(nameGuess, NormalizeName(t.Album.Title))
	res.Album = albumScore >= s.threshold

	res.Score = max(titleScore, artistScore, albumScore)
	return res
}

// Similarity returns 1 minus the Levenshtein distance over the longer length.
// Two empty strings are not similar.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// MatchesSong reports whether any search result is by exactly artist with a
// title equal to song after case folding and trimming.
func MatchesSong(results []track.Track, artist, song string) bool {
	want := strings.ToLower(strings.TrimSpace(song))
	for _, t := range results {
		if t.Artist.Name == artist && strings.ToLower(strings.TrimSpace(t.Title)) == want {
			return true
		}
	}
	return false
}
