package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	m := New()

	tests := []struct {
		name      string
		label     string
		codes     []string
		wantCode  string
		wantScore float64
		override  bool
		matched   bool
	}{
		{
			name:     "HardwareLabOverride",
			label:    "Hardware Lab",
			codes:    []string{"24CSL307", "MATH201"},
			wantCode: "24CSL307", wantScore: ScoreExact, override: true, matched: true,
		},
		{
			name:     "DataStructureLabOverride",
			label:    "Data Structures LAB",
			codes:    []string{"CS201", "24CSL306"},
			wantCode: "24CSL306", wantScore: ScoreExact, override: true, matched: true,
		},
		{
			name:     "SkillCourseOverride",
			label:    "Skill course",
			codes:    []string{"SC3"},
			wantCode: "SC3", wantScore: ScoreExact, override: true, matched: true,
		},
		{
			name:     "OverrideCodeAbsentFallsThrough",
			label:    "Hardware Lab",
			codes:    []string{"HARDWARE"},
			wantCode: "HARDWARE", wantScore: ScoreContains, matched: true,
		},
		{
			name:     "Exact",
			label:    " cs1 ",
			codes:    []string{"MAT101", "CS1"},
			wantCode: "CS1", wantScore: ScoreExact, matched: true,
		},
		{
			name:     "Containment",
			label:    "Data Structures CS201",
			codes:    []string{"CS201"},
			wantCode: "CS201", wantScore: ScoreContains, matched: true,
		},
		{
			name:     "Keyword",
			label:    "Mathematics",
			codes:    []string{"CS1", "MAT101"},
			wantCode: "MAT101", wantScore: ScoreKeyword, matched: true,
		},
		{
			name:     "KeywordTieGoesToFirstCandidate",
			label:    "Physics",
			codes:    []string{"PHY101", "PHY102"},
			wantCode: "PHY101", wantScore: ScoreKeyword, matched: true,
		},
		{
			name:     "PartialWords",
			label:    "Digital Electronics",
			codes:    []string{"DIGITAL 301"},
			wantCode: "DIGITAL 301", wantScore: 0.5, matched: true,
		},
		{
			name:    "NoMatch",
			label:   "Yoga",
			codes:   []string{"CS1", "24CSL307"},
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.label, tt.codes)
			require.Equal(t, tt.matched, ok)
			if !tt.matched {
				assert.Empty(t, got.Code)
				return
			}
			assert.Equal(t, tt.wantCode, got.Code)
			assert.InDelta(t, tt.wantScore, got.Score, 1e-9)
			assert.Equal(t, tt.override, got.Override)
		})
	}
}

func TestMatch_ThresholdIsStrict(t *testing.T) {
	m := New()

	// Three of ten label words match: exactly 0.3.
	boundary := "gamma beta alpha xx yy zz ww vv uu tt"
	assert.InDelta(t, 0.3, m.Score(boundary, "ALPHA BETA GAMMA"), 1e-9)
	_, ok := m.Match(boundary, []string{"ALPHA BETA GAMMA"})
	assert.False(t, ok, "a score of exactly 0.3 must not match")

	// Four of ten: 0.4.
	above := "gamma beta alpha delta xx yy zz ww vv uu"
	got, ok := m.Match(above, []string{"ALPHA BETA GAMMA DELTA"})
	require.True(t, ok)
	assert.InDelta(t, 0.4, got.Score, 1e-9)
}

func TestPartialScoreCap(t *testing.T) {
	m := New()
	assert.InDelta(t, MaxScorePartial, m.Score("network security", "SECURITY NETWORK 401"), 1e-9)
}

func TestCustomTables(t *testing.T) {
	m := New(
		WithOverrides([]Override{{Fragments: []string{"yoga"}, Code: "PE1"}}),
		WithKeywords(nil),
	)

	got, ok := m.Match("Morning Yoga", []string{"PE1"})
	require.True(t, ok)
	assert.True(t, got.Override)

	assert.Less(t, m.Score("Mathematics", "MAT101"), ScoreKeyword)
}

func TestMap(t *testing.T) {
	m := New()
	codes := []string{"24CSL307", "MAT101", "CS1"}
	mapping := m.Map([]string{"Yoga", "Mathematics", "Hardware Lab", "Maths Tutorial"}, codes)

	code, ok := mapping.Code("Hardware Lab")
	require.True(t, ok)
	assert.Equal(t, "24CSL307", code)

	code, ok = mapping.Code("Mathematics")
	require.True(t, ok)
	assert.Equal(t, "MAT101", code)

	_, ok = mapping.Code("Yoga")
	assert.False(t, ok)
	assert.Equal(t, []string{"Yoga"}, mapping.Unmatched())
	assert.Equal(t, []string{"Mathematics", "Maths Tutorial"}, mapping.LabelsFor("MAT101"))

	match, ok := mapping.Match("Maths Tutorial")
	require.True(t, ok)
	assert.InDelta(t, 0.5, match.Score, 1e-9)
}
