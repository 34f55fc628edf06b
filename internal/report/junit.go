package report

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/wesleyorama2/colstorm/internal/runner"
)

// JUnitTestSuites represents the root element containing all test suites
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a JUnit test suite
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemOut string          `xml:"system-out,omitempty"`
	SystemErr string          `xml:"system-err,omitempty"`
}

// JUnitTestCase represents a JUnit test case
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitFailure represents a JUnit test failure
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// JUnit converts a report into two suites: one test case per worker and one
// per threshold. A run that never started (connection failure) becomes a
// single errored suite.
func JUnit(doc *Document) *JUnitTestSuites {
	suites := &JUnitTestSuites{Name: "colstorm " + doc.RunID}
	timestamp := doc.GeneratedAt.Format(time.RFC3339)

	if doc.Result == nil {
		suites.TestSuites = append(suites.TestSuites, JUnitTestSuite{
			Name:      "colstorm.run",
			Tests:     1,
			Errors:    1,
			Timestamp: timestamp,
			TestCases: []JUnitTestCase{{
				Name:      "connect",
				Classname: "colstorm." + doc.Driver,
				Failure:   &JUnitFailure{Message: "run did not start", Type: "ConnectError", Content: doc.Error},
			}},
			SystemErr: doc.Error,
		})
		return suites
	}

	result := doc.Result
	classname := fmt.Sprintf("colstorm.%s", result.Mode)

	workers := JUnitTestSuite{
		Name:      "colstorm.workers",
		Time:      result.Duration.Seconds(),
		Timestamp: result.StartTime.UTC().Format(time.RFC3339),
		SystemErr: doc.Error,
	}
	for _, wr := range result.Workers {
		tc := JUnitTestCase{
			Name:      fmt.Sprintf("worker %d", wr.WorkerID),
			Classname: classname,
			Time:      wr.Duration.Seconds(),
			SystemOut: fmt.Sprintf("%d/%d executed, %d succeeded, %d failed", wr.Attempted, wr.Planned, wr.Succeeded, wr.Failed),
		}
		switch {
		case wr.Failed > 0:
			tc.Failure = &JUnitFailure{
				Message: fmt.Sprintf("%d of %d executions failed", wr.Failed, wr.Attempted),
				Type:    "ExecutionFailure",
				Content: wr.FirstError,
			}
			workers.Failures++
		case wr.Cancelled:
			tc.Failure = &JUnitFailure{
				Message: fmt.Sprintf("cancelled after %d of %d executions", wr.Attempted, wr.Planned),
				Type:    "Cancelled",
			}
			workers.Errors++
		}
		workers.TestCases = append(workers.TestCases, tc)
	}
	workers.Tests = len(workers.TestCases)
	suites.TestSuites = append(suites.TestSuites, workers)

	if len(result.Thresholds) > 0 {
		thresholds := JUnitTestSuite{
			Name:      "colstorm.thresholds",
			Timestamp: timestamp,
		}
		for _, tr := range result.Thresholds {
			tc := JUnitTestCase{
				Name:      fmt.Sprintf("%s: %s", tr.Metric, tr.Expression),
				Classname: classname,
			}
			if !tr.Passed {
				tc.Failure = thresholdFailure(tr)
				thresholds.Failures++
			}
			thresholds.TestCases = append(thresholds.TestCases, tc)
		}
		thresholds.Tests = len(thresholds.TestCases)
		suites.TestSuites = append(suites.TestSuites, thresholds)
	}

	return suites
}

func thresholdFailure(tr runner.ThresholdResult) *JUnitFailure {
	msg := tr.Message
	if msg == "" {
		msg = fmt.Sprintf("threshold not met (actual: %s)", tr.Value)
	}
	return &JUnitFailure{Message: msg, Type: "ThresholdFailure", Content: tr.Value}
}
