package predicate

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tasks.yaml
var catalogueYAML []byte

// Catalogue returns the built-in OOLONG-Pairs tasks in id order.
func Catalogue() ([]Task, error) {
	return Parse(catalogueYAML)
}

// Lookup returns the built-in task with the given id.
func Lookup(id int) (Task, error) {
	tasks, err := Catalogue()
	if err != nil {
		return Task{}, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return Task{}, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
}

// LoadFile reads task definitions from a YAML file. The file holds either a
// single task or a list of tasks.
func LoadFile(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates task definitions. Unknown fields are
// rejected so that misspelled clauses fail at load time.
func Parse(data []byte) ([]Task, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("%w: empty task definition", ErrInvalid)
	}

	var tasks []Task
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if node.Content[0].Kind == yaml.SequenceNode {
		if err := dec.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	} else {
		var t Task
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		tasks = append(tasks, t)
	}

	seen := make(map[int]bool, len(tasks))
	for i := range tasks {
		if err := tasks[i].Validate(); err != nil {
			return nil, err
		}
		if seen[tasks[i].ID] {
			return nil, fmt.Errorf("%w: duplicate task id %d", ErrInvalid, tasks[i].ID)
		}
		seen[tasks[i].ID] = true
	}

	return tasks, nil
}
