package report

import (
	"bytes"
	"context"
	"encoding/xml"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/record"
	"testweaver/internal/recorder"
	"testweaver/internal/result"
	"testweaver/internal/testoutput"
)

func sampleLive() []result.Live {
	return []result.Live{
		{
			Name:     "passes",
			Status:   result.StatusPass,
			Duration: 120 * time.Millisecond,
			Output:   result.Split(testoutput.FromBytes([]byte("hello\n")), testoutput.FromBytes(nil)),
		},
		{
			Name:     "fails",
			ExitCode: 2,
			Status:   result.StatusFail,
			Duration: 30 * time.Millisecond,
			Output:   result.Split(testoutput.FromBytes([]byte("line one\nline two\n")), testoutput.FromBytes([]byte("boom\n"))),
		},
		{
			Name:   "binary",
			Status: result.StatusTimeout,
			Output: result.Combined(testoutput.FromBytes([]byte{'o', 'k', 0xFF})),
		},
	}
}

// replay archives results and opens them again as recorded results.
func replay(t *testing.T, live []result.Live) []result.Recorded {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.zip")
	info := recorder.RunInfo{RunID: "r", CreatedAt: time.Unix(0, 0)}
	_, err := recorder.Save(context.Background(), recorder.KindZip, path, info, live)
	require.NoError(t, err)
	a, err := recorder.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a.Results()
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	counts, err := WriteSummary(&buf, sampleLive(), SummaryOptions{})
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, Counts{Passed: 1, Failed: 1, TimedOut: 1}, counts)
	assert.False(t, counts.OK())
	assert.Contains(t, out, "PASS    passes (120ms)")
	assert.NotContains(t, out, "hello")
	assert.Contains(t, out, "exit code: 2")
	assert.Contains(t, out, "  line two\n")
	assert.Contains(t, out, "  boom\n")
	assert.Contains(t, out, "not valid UTF-8 (first invalid byte at offset 2)")
	assert.Contains(t, out, "ok�")
	assert.Contains(t, out, "3 tests (live): 1 passed, 1 failed, 1 timed out")
}

func TestWriteSummary_LiveAndReplayMatch(t *testing.T) {
	live := sampleLive()
	recorded := replay(t, live)
	opts := SummaryOptions{ShowPassingOutput: true}

	var liveBuf, recBuf bytes.Buffer
	_, err := WriteSummary(&liveBuf, live, opts)
	require.NoError(t, err)
	_, err = WriteSummary(&recBuf, recorded, opts)
	require.NoError(t, err)

	liveOut := strings.Replace(liveBuf.String(), "(live)", "(MODE)", 1)
	recOut := strings.Replace(recBuf.String(), "(recorded)", "(MODE)", 1)
	assert.Equal(t, liveOut, recOut)
}

func TestWriteSummary_Unavailable(t *testing.T) {
	store := record.NewMemoryStore()
	ref, _ := store.Put([]byte("lost"))
	out := record.NewOutput(ref, 4, store)
	_ = store.Delete(ref)
	results := []result.Recorded{{Name: "gone", Status: result.StatusFail, ExitCode: 1, Output: result.Combined(out)}}

	var buf bytes.Buffer
	_, err := WriteSummary(&buf, results, SummaryOptions{HideDurations: true})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "output unavailable")
	assert.Contains(t, buf.String(), "FAIL    gone\n")
}

func TestWriteJUnit_LiveAndReplayIdentical(t *testing.T) {
	live := sampleLive()
	recorded := replay(t, live)
	opts := JUnitOptions{SuiteName: "unit"}

	var liveBuf, recBuf bytes.Buffer
	require.NoError(t, WriteJUnit(&liveBuf, live, opts))
	require.NoError(t, WriteJUnit(&recBuf, recorded, opts))
	assert.Equal(t, liveBuf.String(), recBuf.String())

	var doc junitTestSuites
	require.NoError(t, xml.Unmarshal(liveBuf.Bytes(), &doc))
	assert.Equal(t, 3, doc.Tests)
	assert.Equal(t, 1, doc.Failures)
	assert.Equal(t, 1, doc.Errors)
	require.Len(t, doc.Suites, 1)
	cases := doc.Suites[0].Cases
	require.Len(t, cases, 3)
	assert.Equal(t, "hello\n", cases[0].SystemOut)
	assert.Equal(t, "boom\n", cases[1].SystemErr)
	assert.Equal(t, "exit code 2", cases[1].Failure.Message)
	assert.Equal(t, "timeout", cases[2].Error.Type)
	require.NotNil(t, doc.Suites[0].Properties)
	props := doc.Suites[0].Properties.Property
	require.Len(t, props, 1)
	assert.Equal(t, "binary.output.encoding", props[0].Name)
	assert.Equal(t, "invalid-utf8", props[0].Value)
}

func TestWriteJUnit_ControlCharactersEscaped(t *testing.T) {
	live := []result.Live{{
		Name:   "colored",
		Status: result.StatusFail,
		Output: result.Split(testoutput.FromBytes([]byte("\x1b[31mFAIL\x1b[0m\n")), testoutput.FromBytes([]byte("nul\x00"))),
	}}
	recorded := replay(t, live)

	var liveBuf, recBuf bytes.Buffer
	require.NoError(t, WriteJUnit(&liveBuf, live, JUnitOptions{SuiteName: "unit"}))
	require.NoError(t, WriteJUnit(&recBuf, recorded, JUnitOptions{SuiteName: "unit"}))
	assert.Equal(t, liveBuf.String(), recBuf.String())
	assert.NotContains(t, liveBuf.String(), "\uFFFD")

	var doc junitTestSuites
	require.NoError(t, xml.Unmarshal(liveBuf.Bytes(), &doc))
	tc := doc.Suites[0].Cases[0]
	assert.Equal(t, `\u001b[31mFAIL\u001b[0m`+"\n", tc.SystemOut)
	assert.Equal(t, `nul\u0000`, tc.SystemErr)
	require.NotNil(t, doc.Suites[0].Properties)
	props := doc.Suites[0].Properties.Property
	require.Len(t, props, 2)
	assert.Equal(t, junitProperty{Name: "colored.stdout.escaped", Value: "xml-control-chars"}, props[0])
	assert.Equal(t, junitProperty{Name: "colored.stderr.escaped", Value: "xml-control-chars"}, props[1])
}

func TestWriteJUnit_NoPropertiesElementWhenClean(t *testing.T) {
	live := []result.Live{{
		Name:   "clean",
		Status: result.StatusPass,
		Output: result.Combined(testoutput.FromBytes([]byte("tab\there\r\n"))),
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, live, JUnitOptions{SuiteName: "unit"}))
	assert.NotContains(t, buf.String(), "<properties")

	var doc junitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Nil(t, doc.Suites[0].Properties)
	assert.Equal(t, "tab\there\r\n", doc.Suites[0].Cases[0].SystemOut)
}

func TestEscapeXMLChars(t *testing.T) {
	cases := map[string]struct {
		in, want string
		n        int
	}{
		"plain":        {in: "hello\n", want: "hello\n"},
		"escape":       {in: "\x1b[0m", want: `\u001b[0m`, n: 1},
		"noncharacter": {in: "a\uFFFEb", want: `a\ufffeb`, n: 1},
		"astral":       {in: "\U0001F600", want: "\U0001F600"},
		"replacement":  {in: "\uFFFD", want: "\uFFFD"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, n := escapeXMLChars(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.n, n)
		})
	}
}

func TestWriteJUnit_UnavailableAborts(t *testing.T) {
	store := record.NewMemoryStore()
	ref, _ := store.Put([]byte("lost"))
	out := record.NewOutput(ref, 4, store)
	_ = store.Delete(ref)
	results := []result.Recorded{{Name: "gone", Output: result.Combined(out)}}

	var buf bytes.Buffer
	err := WriteJUnit(&buf, results, JUnitOptions{SuiteName: "unit"})
	assert.ErrorContains(t, err, "output unavailable")
}

func TestCompareRuns_LiveAgainstReplay(t *testing.T) {
	live := sampleLive()
	recorded := replay(t, live)

	rc := CompareRuns(live, recorded)
	assert.True(t, rc.Equal())
	assert.Len(t, rc.Compared, 3)

	var buf bytes.Buffer
	equal, err := WriteComparison(&buf, rc, "live", "archive")
	require.NoError(t, err)
	assert.True(t, equal)
	assert.Contains(t, buf.String(), "identical (3 tests)")
}

func TestCompareRuns_Differences(t *testing.T) {
	baseline := replay(t, sampleLive())

	changed := sampleLive()
	changed[1].Output = result.Split(testoutput.FromBytes([]byte("line one\nline 2\n")), testoutput.FromBytes([]byte("boom\n")))
	changed[2].Output = result.Combined(testoutput.FromBytes([]byte{'o', 'k', 0xFE}))
	changed[0].Name = "renamed"

	rc := CompareRuns(changed, baseline)
	assert.False(t, rc.Equal())
	assert.Equal(t, []string{"renamed"}, rc.OnlyA)
	assert.Equal(t, []string{"passes"}, rc.OnlyB)

	var buf bytes.Buffer
	equal, err := WriteComparison(&buf, rc, "live", "baseline")
	require.NoError(t, err)
	assert.False(t, equal)
	out := buf.String()
	assert.Contains(t, out, " line one\n")
	assert.Contains(t, out, "-line 2\n")
	assert.Contains(t, out, "+line two\n")
	assert.Contains(t, out, "output: binary content differs")
}

func TestCompare_Unavailable(t *testing.T) {
	store := record.NewMemoryStore()
	ref, _ := store.Put([]byte("lost"))
	gone := result.Recorded{Name: "x", Output: result.Combined(record.NewOutput(ref, 4, store))}
	_ = store.Delete(ref)
	live := result.Live{Name: "x", Output: result.Combined(testoutput.FromBytes([]byte("lost")))}

	c := Compare(live, gone)
	require.Len(t, c.Streams, 1)
	assert.Equal(t, StreamUnavailable, c.Streams[0].Outcome)
	assert.False(t, c.Equal())
}

func TestCompare_KindMismatch(t *testing.T) {
	a := result.Live{Name: "x", Output: result.Combined(testoutput.FromBytes(nil))}
	b := result.Live{Name: "x", Output: result.Split(testoutput.FromBytes(nil), testoutput.FromBytes(nil))}
	c := Compare(a, b)
	assert.True(t, c.KindMismatch)
	assert.False(t, c.Equal())
}
