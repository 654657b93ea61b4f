package runtime

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// ReportWriter renders finished flow reports.
type ReportWriter interface {
	ContentType() string
	Write(w io.Writer, reports []Report) error
}

// ReportWriterRegistry maps output format names to writers.
type ReportWriterRegistry struct {
	writers map[string]ReportWriter
}

// NewReportWriterRegistry creates a registry with the built-in formats:
// text, json and junit.
func NewReportWriterRegistry() *ReportWriterRegistry {
	registry := &ReportWriterRegistry{
		writers: make(map[string]ReportWriter),
	}

	registry.Register("text", &TextReportWriter{})
	registry.Register("json", &JSONReportWriter{})
	registry.Register("junit", &JUnitReportWriter{})

	return registry
}

func (r *ReportWriterRegistry) Register(format string, writer ReportWriter) {
	r.writers[format] = writer
}

func (r *ReportWriterRegistry) Get(format string) (ReportWriter, bool) {
	writer, exists := r.writers[format]
	return writer, exists
}

// Formats lists the registered format names, sorted.
func (r *ReportWriterRegistry) Formats() []string {
	formats := make([]string, 0, len(r.writers))
	for f := range r.writers {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// JSONReportWriter writes the reports as an indented JSON array.
type JSONReportWriter struct{}

func (*JSONReportWriter) ContentType() string { return "application/json" }

func (*JSONReportWriter) Write(w io.Writer, reports []Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if reports == nil {
		reports = []Report{}
	}
	return enc.Encode(reports)
}

// TextReportWriter writes one table row per step and a summary line.
type TextReportWriter struct{}

func (*TextReportWriter) ContentType() string { return "text/plain; charset=utf-8" }

func (*TextReportWriter) Write(w io.Writer, reports []Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	passed := 0
	for _, r := range reports {
		status := "PASS"
		if r.Passed() {
			passed++
		} else {
			status = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", status, r.FlowID, r.Duration.Round(time.Millisecond))
		for _, s := range r.Steps {
			line := fmt.Sprintf("  %s\t%s\t%s", s.Outcome, s.StepID, s.Function)
			if s.Resource != "" {
				line += " @" + s.Resource
			}
			fmt.Fprintln(tw, line)
		}
		if r.Failure != nil {
			fmt.Fprintf(tw, "  error\t%s\t%s\n", r.Failure.Kind, oneLine(r.Failure.Message))
		}
	}
	fmt.Fprintf(tw, "\n%d passed, %d failed\n", passed, len(reports)-passed)
	return tw.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// JUnitReportWriter writes a JUnit XML document with one testsuite per flow
// and one testcase per executed step.
type JUnitReportWriter struct{}

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *struct{}     `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

func (*JUnitReportWriter) ContentType() string { return "application/xml" }

func (*JUnitReportWriter) Write(w io.Writer, reports []Report) error {
	doc := junitSuites{}
	for _, r := range reports {
		suite := junitSuite{Name: r.FlowID, Time: seconds(r.Duration)}
		for _, s := range r.Steps {
			tc := junitCase{Name: s.StepID, ClassName: r.FlowID + "." + s.Function, Time: seconds(s.Duration)}
			switch s.Outcome {
			case OutcomeFailed:
				tc.Failure = junitFailureFor(r.Failure, s.Error)
				suite.Failures++
			case OutcomeSkipped:
				tc.Skipped = &struct{}{}
				suite.Skipped++
			}
			suite.Cases = append(suite.Cases, tc)
		}
		// a failure before any step ran, e.g. test data composition
		if r.Failure != nil && suite.Failures == 0 {
			suite.Cases = append(suite.Cases, junitCase{
				Name:      r.Failure.Step,
				ClassName: r.FlowID,
				Failure:   junitFailureFor(r.Failure, r.Failure.Message),
			})
			suite.Failures++
		}
		suite.Tests = len(suite.Cases)
		doc.Tests += suite.Tests
		doc.Failures += suite.Failures
		doc.Suites = append(doc.Suites, suite)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("error encoding junit report: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func junitFailureFor(fe *FlowError, message string) *junitFailure {
	f := &junitFailure{Type: string(KindStepExecution), Message: message, Body: message}
	if fe != nil {
		f.Type = string(fe.Kind)
		if fe.Path != "" {
			f.Body = fmt.Sprintf("%s\npath: %s", message, fe.Path)
		}
	}
	return f
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
