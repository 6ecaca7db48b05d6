package bdd

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/misteriosai/agent-memory/internal/testutil/cucumber"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		m := &memorySteps{s: s}
		ctx.Step(`^the embedding service is (up|down)$`, m.theEmbeddingServiceIs)
		ctx.Step(`^the embedding service should have received (\d+) requests?$`, m.theEmbeddingServiceShouldHaveReceived)
		ctx.Step(`^I remember the texts "([^"]*)" for user "([^"]*)"$`, m.iRememberTheTextsForUser)
		ctx.Step(`^I log step (\d+) of task "([^"]*)" for user "([^"]*)" with output "([^"]*)"$`, m.iLogStep)
	})
}

type memorySteps struct {
	s *cucumber.TestScenario
}

func (m *memorySteps) stub() (*StubTEI, error) {
	stub, ok := m.s.Suite.Extra["tei"].(*StubTEI)
	if !ok {
		return nil, fmt.Errorf("no embedding stub registered")
	}
	return stub, nil
}

func (m *memorySteps) theEmbeddingServiceIs(state string) error {
	stub, err := m.stub()
	if err != nil {
		return err
	}
	stub.SetDown(state == "down")
	return nil
}

func (m *memorySteps) theEmbeddingServiceShouldHaveReceived(expected int) error {
	stub, err := m.stub()
	if err != nil {
		return err
	}
	if got := stub.Calls(); got != int64(expected) {
		return fmt.Errorf("expected %d embedding requests, got %d", expected, got)
	}
	return nil
}

// iRememberTheTextsForUser stores a "|" separated list of texts.
func (m *memorySteps) iRememberTheTextsForUser(texts, user string) error {
	body := fmt.Sprintf(`{"texts": ${texts | json}, "user_id": %q}`, user)
	m.s.Variables["texts"] = strings.Split(texts, "|")
	if err := m.s.SendRequestWithJSONBody("POST", "/v1/memory/semantic", &godog.DocString{Content: body}); err != nil {
		return err
	}
	if m.s.Resp.StatusCode != 202 {
		return fmt.Errorf("remember returned %d: %s", m.s.Resp.StatusCode, m.s.RespBytes)
	}
	return nil
}

func (m *memorySteps) iLogStep(step int, task, user, output string) error {
	body := fmt.Sprintf(`{"task_id": %q, "user_id": %q, "step": %d, "input": "step %d", "output": %q, "tools_used": {"step": %d}, "duration_ms": 1}`,
		task, user, step, step, output, step)
	if err := m.s.SendRequestWithJSONBody("POST", "/v1/memory/procedural/steps", &godog.DocString{Content: body}); err != nil {
		return err
	}
	if m.s.Resp.StatusCode != 202 {
		return fmt.Errorf("log step returned %d: %s", m.s.Resp.StatusCode, m.s.RespBytes)
	}
	return nil
}
