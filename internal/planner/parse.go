package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/RevCBH/ralph/internal/prd"
)

// Evaluation is the parsed outcome of one planner invocation.
type Evaluation struct {
	SpecSatisfied bool
	Reasoning     string
	NewTasks      []prd.Item
}

// rawEvaluation accepts both camelCase and snake_case key spellings.
type rawEvaluation struct {
	SpecSatisfied      *bool           `json:"specSatisfied"`
	SpecSatisfiedSnake *bool           `json:"spec_satisfied"`
	Reasoning          string          `json:"reasoning"`
	NewTasks           json.RawMessage `json:"newTasks"`
	NewTasksSnake      json.RawMessage `json:"new_tasks"`
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseEvaluation extracts the planner's JSON verdict from raw model
// output. It accepts a bare top-level object, a fenced code block, or
// free text with an embedded JSON block. Anything unparseable yields an
// empty evaluation rather than an error: a confused planner must never
// stop the factory.
func ParseEvaluation(output string) Evaluation {
	candidate := strings.TrimSpace(output)

	if m := fencedBlock.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	} else if !strings.HasPrefix(candidate, "{") {
		// Free text with an embedded object: take the outermost braces.
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start < 0 || end <= start {
			return Evaluation{}
		}
		candidate = candidate[start : end+1]
	}

	var raw rawEvaluation
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return Evaluation{}
	}

	eval := Evaluation{Reasoning: raw.Reasoning}
	if raw.SpecSatisfied != nil {
		eval.SpecSatisfied = *raw.SpecSatisfied
	} else if raw.SpecSatisfiedSnake != nil {
		eval.SpecSatisfied = *raw.SpecSatisfiedSnake
	}

	tasksJSON := raw.NewTasks
	if tasksJSON == nil {
		tasksJSON = raw.NewTasksSnake
	}
	if tasksJSON != nil {
		var tasks []prd.Item
		if err := json.Unmarshal(tasksJSON, &tasks); err == nil {
			eval.NewTasks = tasks
		}
	}
	return eval
}

// Sanitize filters proposed tasks: entries with an empty id or
// description are dropped, as are ids already present in the backlog.
// Survivors get status pending.
func Sanitize(tasks []prd.Item, existingIDs map[string]bool) []prd.Item {
	var clean []prd.Item
	seen := make(map[string]bool)

	for _, task := range tasks {
		id := strings.TrimSpace(task.ID)
		if id == "" || strings.TrimSpace(task.Description) == "" {
			continue
		}
		if existingIDs[id] || seen[id] {
			continue
		}
		seen[id] = true
		task.ID = id
		task.Status = prd.StatusPending
		task.Passes = nil
		clean = append(clean, task)
	}
	return clean
}
