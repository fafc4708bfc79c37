package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
	"catlux/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(id, ref string) models.Descriptor {
	return models.Descriptor{
		ID:             id,
		Category:       "Schulaufgabe",
		Title:          "Test " + id,
		ReferenceLabel: ref,
		ExamLocator:    "https://www.catlux.de/files/" + id + "?dl=pdf",
	}
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// countingLister records which pages were requested
type countingLister struct {
	pages     map[int][]models.Descriptor
	failOn    map[int]error
	requested []int
}

func (l *countingLister) FetchPage(_ context.Context, _ string, page int) ([]models.Descriptor, error) {
	l.requested = append(l.requested, page)
	if err, ok := l.failOn[page]; ok {
		return nil, err
	}
	return l.pages[page], nil
}

func TestBuildSynthesizesSolutions(t *testing.T) {
	cat, err := FromPages(context.Background(), []Page{
		{Descriptors: []models.Descriptor{desc("119215", "#3426"), desc("118065", "#3425")}},
	}, logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"119215", "119215_solution", "118065", "118065_solution"}, ids(cat.Records()))

	sol, ok := cat.Lookup("119215_solution", models.KindSolution)
	require.True(t, ok)
	assert.Equal(t, "119215", sol.GroupID)
	assert.Equal(t, models.Reference{Number: 3426, Present: true}, sol.Reference)
	assert.Equal(t, "https://www.catlux.de/files/119215_solution?dl=pdf", sol.Locator)

	exam, ok := cat.Lookup(sol.GroupID, models.KindExam)
	require.True(t, ok)
	assert.Equal(t, "119215", exam.ID)
}

func TestBuildKeepsListedSolutionLocator(t *testing.T) {
	d := desc("1", "#1")
	d.SolutionLocator = "https://www.catlux.de/loesung/1?dl=pdf"
	cat := New()
	cat.Add([]models.Descriptor{d})

	sol, ok := cat.Lookup("1_solution", models.KindSolution)
	require.True(t, ok)
	assert.Equal(t, d.SolutionLocator, sol.Locator)
}

func TestBuildDeduplicatesAndStopsOnNoNewGroups(t *testing.T) {
	lister := &countingLister{pages: map[int][]models.Descriptor{
		1: {desc("A", "#1"), desc("B", "#2")},
		2: {desc("B", "#2"), desc("C", "#3")},
		3: {desc("A", "#1"), desc("C", "#3")},
		4: {desc("D", "#4")},
	}}

	cat, err := Build(context.Background(), lister, "cat", 10, logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, lister.requested)
	assert.Equal(t, []string{"A", "A_solution", "B", "B_solution", "C", "C_solution"}, ids(cat.Records()))
	assert.Equal(t, 2, cat.PagesProcessed())
}

func TestBuildStopsOnEmptyPage(t *testing.T) {
	lister := &countingLister{pages: map[int][]models.Descriptor{
		1: {desc("A", "#1")},
	}}

	cat, err := Build(context.Background(), lister, "cat", 10, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, lister.requested)
	assert.Equal(t, 2, cat.Len())
}

func TestBuildRespectsMaxPages(t *testing.T) {
	pages := map[int][]models.Descriptor{}
	for i := 1; i <= 5; i++ {
		pages[i] = []models.Descriptor{desc(fmt.Sprintf("D%d", i), fmt.Sprintf("#%d", i))}
	}
	lister := &countingLister{pages: pages}

	cat, err := Build(context.Background(), lister, "cat", 3, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, lister.requested)
	assert.Equal(t, 6, cat.Len())
}

func TestBuildPartialListing(t *testing.T) {
	pageErr := errs.NewFetchError(errs.ErrorTypeServerError, 502, "bad gateway", nil)
	pages := map[int][]models.Descriptor{}
	for i := 1; i <= 10; i++ {
		pages[i] = []models.Descriptor{desc(fmt.Sprintf("P%d", i), fmt.Sprintf("#%d", i))}
	}
	lister := &countingLister{pages: pages, failOn: map[int]error{3: pageErr}}

	cat, err := Build(context.Background(), lister, "cat", 10, logger.NewNopLogger())
	require.Error(t, err)

	var partial *errs.PartialListingError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.PagesProcessed)
	assert.Equal(t, 3, partial.FailedPage)
	assert.ErrorIs(t, err, pageErr)

	require.NotNil(t, cat)
	assert.Equal(t, []string{"P1", "P1_solution", "P2", "P2_solution"}, ids(cat.Records()))
	assert.Equal(t, []int{1, 2, 3}, lister.requested)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cat, err := Build(ctx, &countingLister{}, "cat", 3, logger.NewNopLogger())
	var partial *errs.PartialListingError
	require.ErrorAs(t, err, &partial)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, cat.Len())
}

func TestSortedByReference(t *testing.T) {
	cat := New()
	cat.Add([]models.Descriptor{
		desc("none1", "Probe ohne Nummer"),
		desc("ten", "#10"),
		desc("two-a", "#2"),
		desc("none2", ""),
		desc("two-b", "#2"),
	})

	assert.Equal(t, []string{
		"two-a", "two-a_solution",
		"two-b", "two-b_solution",
		"ten", "ten_solution",
		"none1", "none1_solution",
		"none2", "none2_solution",
	}, ids(cat.SortedByReference()))

	// Discovery order is untouched by sorting.
	assert.Equal(t, "none1", cat.Records()[0].ID)
}

func TestSolutionLocator(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.catlux.de/files/119215?dl=pdf", "https://www.catlux.de/files/119215_solution?dl=pdf"},
		{"/files/119215.pdf", "/files/119215_solution.pdf"},
		{"https://x.test/a/b/", "https://x.test/a/b_solution"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SolutionLocator(tt.in))
		})
	}
}

func TestExamLocator(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.catlux.de/files/119215_solution?dl=pdf", "https://www.catlux.de/files/119215?dl=pdf"},
		{"/files/119215_solution.pdf", "/files/119215.pdf"},
		{"/files/119215_solution.PDF", "/files/119215.PDF"},
		{"https://x.test/a_solution/b_solution/119215_solution?dl=pdf", "https://x.test/a_solution/b_solution/119215?dl=pdf"},
		{"https://x.test/a_solution/119215?dl=pdf", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExamLocator(tt.in))
		})
	}

	round := "https://www.catlux.de/files/probe/Deutsch_7_001.pdf?dl=pdf"
	assert.Equal(t, round, ExamLocator(SolutionLocator(round)))
}

func TestAddSkipsBlankIDs(t *testing.T) {
	cat := New()
	assert.Equal(t, 0, cat.Add([]models.Descriptor{{ID: "  "}}))
	assert.Equal(t, 0, cat.Len())
}
