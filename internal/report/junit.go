package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"testweaver/internal/logger"
	"testweaver/internal/outputspec"
	"testweaver/internal/result"
)

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name       string           `xml:"name,attr"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       string           `xml:"time,attr"`
	Properties *junitProperties `xml:"properties,omitempty"`
	Cases      []junitTestCase  `xml:"testcase"`
}

type junitProperties struct {
	Property []junitProperty `xml:"property"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitFailure `xml:"error,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
	SystemErr string        `xml:"system-err,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitOptions controls XML emission.
type JUnitOptions struct {
	SuiteName string
	// HideDurations writes time="0.000" everywhere, for reproducible output.
	HideDurations bool
}

// WriteJUnit serializes results as a JUnit XML report. Output that is not
// valid UTF-8 is written with replacement characters and flagged with a
// property. Characters XML 1.0 cannot carry, such as ANSI escapes or NUL,
// are written as \uXXXX text and flagged the same way. Output that cannot
// be retrieved aborts the report, since the XML would otherwise claim the
// test printed nothing.
func WriteJUnit[S outputspec.Spec[C], C outputspec.ChildOutput](w io.Writer, results []result.TestResult[S, C], opts JUnitOptions) error {
	suite := junitTestSuite{Name: opts.SuiteName}
	var props []junitProperty
	flag := func(test, stream, key, value, note string) {
		logger.Warnf("junit: test %q %s: %s", test, stream, note)
		props = append(props, junitProperty{Name: fmt.Sprintf("%s.%s.%s", test, stream, key), Value: value})
	}
	var total float64

	for _, r := range results {
		seconds := float64(r.Duration.Milliseconds()) / 1000
		if opts.HideDurations {
			seconds = 0
		}
		total += seconds
		tc := junitTestCase{
			Name:      r.Name,
			Classname: opts.SuiteName,
			Time:      fmt.Sprintf("%.3f", seconds),
		}
		switch r.Status {
		case result.StatusFail:
			suite.Failures++
			tc.Failure = &junitFailure{Message: fmt.Sprintf("exit code %d", r.ExitCode), Type: "failure"}
		case result.StatusTimeout:
			suite.Errors++
			tc.Error = &junitFailure{Message: "timed out", Type: "timeout"}
		}

		for _, s := range r.Output.Streams() {
			rendered := RenderStream(s.Output)
			if rendered.Unavailable {
				return fmt.Errorf("junit: test %q %s: %s", r.Name, s.Name, rendered.Note)
			}
			if rendered.Note != "" {
				flag(r.Name, s.Name, "encoding", "invalid-utf8", rendered.Note)
			}
			text, escaped := escapeXMLChars(rendered.Text)
			if escaped > 0 {
				flag(r.Name, s.Name, "escaped", "xml-control-chars",
					fmt.Sprintf("%d characters not allowed in XML written as \\uXXXX", escaped))
			}
			if s.Name == result.StreamStderr {
				tc.SystemErr = text
			} else {
				tc.SystemOut = text
			}
		}
		suite.Cases = append(suite.Cases, tc)
	}

	if len(props) > 0 {
		suite.Properties = &junitProperties{Property: props}
	}
	suite.Tests = len(suite.Cases)
	suite.Time = fmt.Sprintf("%.3f", total)
	doc := junitTestSuites{
		Name:     opts.SuiteName,
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Errors:   suite.Errors,
		Time:     suite.Time,
		Suites:   []junitTestSuite{suite},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("junit: encoding report: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return nil
}

// escapeXMLChars rewrites runes outside the XML 1.0 Char production as
// \uXXXX. encoding/xml would otherwise replace them with U+FFFD.
func escapeXMLChars(s string) (string, int) {
	n := 0
	for _, r := range s {
		if !isXMLChar(r) {
			n++
		}
	}
	if n == 0 {
		return s, 0
	}
	var b strings.Builder
	b.Grow(len(s) + 5*n)
	for _, r := range s {
		if isXMLChar(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "\\u%04x", r)
		}
	}
	return b.String(), n
}

func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
