// Package cucumber is a godog step library for driving a JSON HTTP API.
//
// Variables are scoped to the scenario and expanded with ${...}:
//   - ${name}               scenario variable
//   - ${name.field}         nested field of a variable
//   - ${response}           last response body as JSON
//   - ${response.field}     gojq selection on the last response body
//   - ${value | pipe}       pipes: json, string
//
// Every scenario starts with ${run} set to a fresh uuid so features can use
// unique ids against a shared server.
package cucumber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/google/uuid"
	"github.com/itchyny/gojq"
	"github.com/pmezard/go-difflib/difflib"
)

// TestSuite holds state shared by every scenario of one godog run.
type TestSuite struct {
	APIURL   string
	TestingT *testing.T
	// Extra carries test doubles (stub servers and the like) to step modules.
	Extra map[string]any
	// BeforeScenario runs before each scenario when set.
	BeforeScenario func(ctx context.Context) error
}

// NewTestSuite returns a suite pointed at apiURL.
func NewTestSuite(apiURL string) *TestSuite {
	return &TestSuite{APIURL: apiURL, Extra: map[string]any{}}
}

// DefaultOptions returns the godog options used by the feature tests.
func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 1,
		Strict:      true,
	}
}

// ApplyReportOptions configures junit XML output when GODOG_REPORT_DIR is set.
// The returned cleanup must be called after the run.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	reportDir := os.Getenv("GODOG_REPORT_DIR")
	if reportDir == "" {
		return func() {}
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return func() {}
	}
	f, err := os.Create(filepath.Join(reportDir, strings.ReplaceAll(testName, "/", "-")+".xml"))
	if err != nil {
		return func() {}
	}
	opts.Output = f
	opts.Format = "junit"
	return func() { _ = f.Close() }
}

// TestScenario holds the state of one scenario.
type TestScenario struct {
	Suite     *TestSuite
	Variables map[string]any
	Client    *http.Client

	Resp      *http.Response
	RespBytes []byte
	respJSON  any
}

// StepModules register steps on every scenario. Packages append to it from init().
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

// InitializeScenario is the godog ScenarioInitializer.
func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:     suite,
		Variables: map[string]any{"run": uuid.NewString()},
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
	if suite.BeforeScenario != nil {
		ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
			return c, suite.BeforeScenario(c)
		})
	}
	for _, module := range StepModules {
		module(ctx, s)
	}
}

// Logf logs through the suite's testing.T.
func (s *TestScenario) Logf(format string, args ...any) {
	s.Suite.TestingT.Logf(format, args...)
}

// RespJSON returns the last response body parsed as JSON.
func (s *TestScenario) RespJSON() (any, error) {
	if s.respJSON == nil {
		if s.RespBytes == nil {
			return nil, fmt.Errorf("no response body")
		}
		if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
			return nil, fmt.Errorf("error parsing response json: %w\njson was:\n%s", err, s.RespBytes)
		}
	}
	return s.respJSON, nil
}

func (s *TestScenario) setResponse(resp *http.Response, body []byte) {
	s.Resp = resp
	s.RespBytes = body
	s.respJSON = nil
}

// Expand replaces every ${...} in value.
func (s *TestScenario) Expand(value string) (result string, rerr error) {
	return os.Expand(value, func(name string) string {
		res, err := s.ResolveString(name)
		if err != nil && rerr == nil {
			rerr = err
		}
		return res
	}), rerr
}

// ResolveString resolves name and renders it as text.
func (s *TestScenario) ResolveString(name string) (string, error) {
	value, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	return toString(value)
}

// Resolve evaluates a ${...} expression without the braces.
func (s *TestScenario) Resolve(expr string) (any, error) {
	parts := strings.Split(expr, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	name, pipes := parts[0], parts[1:]

	if name == "response" || strings.HasPrefix(name, "response.") || strings.HasPrefix(name, "response[") {
		doc, err := s.RespJSON()
		if err != nil {
			return nil, err
		}
		value, err := selectOne("."+name, map[string]any{"response": doc})
		return pipeline(pipes, value, err)
	}

	path := strings.Split(name, ".")
	value, found := s.Variables[path[0]]
	if !found {
		return nil, fmt.Errorf("variable ${%s} not defined yet", path[0])
	}
	for _, part := range path[1:] {
		var err error
		if value, err = selectChild(value, part); err != nil {
			return nil, err
		}
	}
	return pipeline(pipes, value, nil)
}

// selectOne runs a gojq selector and returns its first result.
func selectOne(selector string, doc any) (any, error) {
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	iter := query.Run(doc)
	next, found := iter.Next()
	if !found {
		return nil, fmt.Errorf("no node matches selector %s", selector)
	}
	if err, ok := next.(error); ok {
		return nil, fmt.Errorf("selector %s: %w", selector, err)
	}
	return next, nil
}

func selectChild(value any, key string) (any, error) {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		k := reflect.ValueOf(key)
		if v.Type().Key() != k.Type() {
			return nil, fmt.Errorf("cannot select map key %s from %s", key, v.Type())
		}
		v = v.MapIndex(k)
		if !v.IsValid() {
			return nil, fmt.Errorf("map key %s not found", key)
		}
	case reflect.Slice:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= v.Len() {
			return nil, fmt.Errorf("slice index %s out of range", key)
		}
		v = v.Index(i)
	default:
		return nil, fmt.Errorf("can't navigate to '%s' on %T", key, value)
	}
	return v.Interface(), nil
}

func pipeline(pipes []string, value any, err error) (any, error) {
	for _, pipe := range pipes {
		if err != nil {
			return nil, err
		}
		switch pipe {
		case "json":
			var data []byte
			data, err = json.Marshal(value)
			value = string(data)
		case "string":
			value = fmt.Sprintf("%v", value)
		default:
			return nil, fmt.Errorf("unknown pipe: %s", pipe)
		}
	}
	return value, err
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	data, err := json.Marshal(value)
	return string(data), err
}

// diff renders a unified diff of two texts.
func diff(expected, actual string) string {
	out, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return out
}

// JSONMustMatch compares two JSON documents for equality after expanding expected.
func (s *TestScenario) JSONMustMatch(actual, expected string) error {
	actualParsed, expectedParsed, err := s.parsePair(actual, expected)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(expectedParsed, actualParsed) {
		e, _ := json.MarshalIndent(expectedParsed, "", "  ")
		a, _ := json.MarshalIndent(actualParsed, "", "  ")
		return fmt.Errorf("actual does not match expected, diff:\n%s", diff(string(e), string(a)))
	}
	return nil
}

// JSONMustContain checks that every field of expected is present in actual.
func (s *TestScenario) JSONMustContain(actual, expected string) error {
	actualParsed, expectedParsed, err := s.parsePair(actual, expected)
	if err != nil {
		return err
	}
	if err := jsonSubset(expectedParsed, actualParsed, "$"); err != nil {
		a, _ := json.MarshalIndent(actualParsed, "", "  ")
		return fmt.Errorf("actual does not contain expected: %w\nactual:\n%s", err, a)
	}
	return nil
}

func (s *TestScenario) parsePair(actual, expected string) (any, any, error) {
	var actualParsed, expectedParsed any
	if err := json.Unmarshal([]byte(actual), &actualParsed); err != nil {
		return nil, nil, fmt.Errorf("error parsing actual json: %w\njson was:\n%s", err, actual)
	}
	expanded, err := s.Expand(expected)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal([]byte(expanded), &expectedParsed); err != nil {
		return nil, nil, fmt.Errorf("error parsing expected json: %w\njson was:\n%s", err, expanded)
	}
	return actualParsed, expectedParsed, nil
}

// jsonSubset: objects may carry extra keys, arrays must have equal length.
func jsonSubset(expected, actual any, path string) error {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return fmt.Errorf("at %s: expected object, got %T", path, actual)
		}
		for key, expVal := range exp {
			actVal, exists := act[key]
			if !exists {
				return fmt.Errorf("at %s: missing key %q", path, key)
			}
			if err := jsonSubset(expVal, actVal, path+"."+key); err != nil {
				return err
			}
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return fmt.Errorf("at %s: expected array, got %T", path, actual)
		}
		if len(exp) != len(act) {
			return fmt.Errorf("at %s: expected array length %d, got %d", path, len(exp), len(act))
		}
		for i := range exp {
			if err := jsonSubset(exp[i], act[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	default:
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Errorf("at %s: expected %v (%T), got %v (%T)", path, expected, expected, actual, actual)
		}
	}
	return nil
}
