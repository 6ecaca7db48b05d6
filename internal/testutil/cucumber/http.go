package cucumber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I (GET|POST|PUT|DELETE) path "([^"]*)"$`, s.sendRequest)
		ctx.Step(`^I (GET|POST|PUT|DELETE) path "([^"]*)" with json body:$`, s.SendRequestWithJSONBody)
		ctx.Step(`^I (GET|POST|PUT|DELETE) path "([^"]*)" with raw body "([^"]*)"$`, s.sendRequestWithRawBody)

		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.theResponseShouldMatchJSON)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJSON)
		ctx.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)
		ctx.Step(`^the "([^"]*)" selection from the response should match "([^"]*)"$`, s.theSelectionShouldMatch)
		ctx.Step(`^the "([^"]*)" selection from the response should match json:$`, s.theSelectionShouldMatchJSON)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.iStoreTheSelectionAs)
		ctx.Step(`^\${([^}]*)} is not empty$`, s.variableIsNotEmpty)
	})
}

func (s *TestScenario) sendRequest(method, path string) error {
	return s.do(method, path, nil)
}

// SendRequestWithJSONBody sends the expanded doc string as a JSON body.
func (s *TestScenario) SendRequestWithJSONBody(method, path string, doc *godog.DocString) error {
	expanded, err := s.Expand(doc.Content)
	if err != nil {
		return err
	}
	return s.do(method, path, strings.NewReader(expanded))
}

func (s *TestScenario) sendRequestWithRawBody(method, path, body string) error {
	return s.do(method, path, strings.NewReader(body))
}

func (s *TestScenario) do(method, path string, body io.Reader) error {
	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.Suite.APIURL+expandedPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	s.setResponse(resp, data)
	return nil
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	if s.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	if s.Resp.StatusCode != expected {
		return fmt.Errorf("expected response code to be: %d, but actual is: %d, body: %s", expected, s.Resp.StatusCode, s.RespBytes)
	}
	return nil
}

func (s *TestScenario) theResponseShouldMatchJSON(expected *godog.DocString) error {
	if len(s.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustMatch(string(s.RespBytes), expected.Content)
}

func (s *TestScenario) theResponseShouldContainJSON(expected *godog.DocString) error {
	if len(s.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustContain(string(s.RespBytes), expected.Content)
}

func (s *TestScenario) theResponseShouldContain(expected string) error {
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if !strings.Contains(string(s.RespBytes), expanded) {
		return fmt.Errorf("expected response to contain %q, body: %s", expanded, s.RespBytes)
	}
	return nil
}

func (s *TestScenario) selectFromResponse(selector string) (any, error) {
	doc, err := s.RespJSON()
	if err != nil {
		return nil, err
	}
	return selectOne(selector, doc)
}

func (s *TestScenario) theSelectionShouldMatch(selector, expected string) error {
	actual, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	text := "null"
	if actual != nil {
		if text, err = toString(actual); err != nil {
			return err
		}
	}
	if text != expected {
		return fmt.Errorf("selection %s does not match:\n%s", selector, diff(expected, text))
	}
	return nil
}

func (s *TestScenario) theSelectionShouldMatchJSON(selector string, expected *godog.DocString) error {
	actual, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	data, err := json.Marshal(actual)
	if err != nil {
		return err
	}
	return s.JSONMustMatch(string(data), expected.Content)
}

func (s *TestScenario) iStoreTheSelectionAs(selector, name string) error {
	value, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	s.Variables[name] = value
	return nil
}

func (s *TestScenario) variableIsNotEmpty(name string) error {
	value, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if value == nil || value == "" {
		return fmt.Errorf("variable ${%s} is empty", name)
	}
	return nil
}
