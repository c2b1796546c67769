package parallel

import (
	"fmt"
	"strings"

	fmerrors "fastmd/internal/errors"

	"github.com/google/uuid"
)

// fenceMarker marks a fenced code block; content containing one costs double.
const fenceMarker = "```"

// ReplaceRule is a literal substitution applied to content before rendering.
type ReplaceRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// TaskOptions carries per-task processing options.
type TaskOptions struct {
	Mode      string        `json:"mode,omitempty"`
	Sourcemap bool          `json:"sourcemap,omitempty"`
	Framework string        `json:"framework,omitempty"`
	Engine    string        `json:"engine,omitempty"`
	Sanitize  bool          `json:"sanitize,omitempty"`
	Rules     []ReplaceRule `json:"rules,omitempty"`
}

// Task is an immutable unit of transformation work. Options and priority are
// set through With* methods, which return modified copies.
type Task struct {
	id       string
	file     string
	content  string
	options  TaskOptions
	priority uint32
}

// NewTask fixes the task's identity, file reference and content.
func NewTask(id, file, content string) Task {
	return Task{id: id, file: file, content: content}
}

// WithOptions returns a copy of t carrying opts.
func (t Task) WithOptions(opts TaskOptions) Task {
	if len(opts.Rules) > 0 {
		opts.Rules = append([]ReplaceRule(nil), opts.Rules...)
	}
	t.options = opts
	return t
}

// WithPriority returns a copy of t carrying priority. Priority is advisory;
// the pool does not reorder work by it.
func (t Task) WithPriority(priority uint32) Task {
	t.priority = priority
	return t
}

func (t Task) ID() string       { return t.id }
func (t Task) File() string     { return t.file }
func (t Task) Content() string  { return t.content }
func (t Task) Priority() uint32 { return t.priority }

// Options returns a copy of the task options.
func (t Task) Options() TaskOptions {
	opts := t.options
	if len(opts.Rules) > 0 {
		opts.Rules = append([]ReplaceRule(nil), opts.Rules...)
	}
	return opts
}

// EstimatedCost approximates rendering effort: the content byte length,
// doubled when the content holds a fenced code block.
func (t Task) EstimatedCost() int {
	cost := len(t.content)
	if strings.Contains(t.content, fenceMarker) {
		cost *= 2
	}
	return cost
}

// TaskBatch is an ordered group of tasks submitted and collected together.
type TaskBatch struct {
	id        string
	tasks     []Task
	totalCost int
}

// NewBatch groups tasks under id. An empty id is replaced by a random one.
// Task ids must be unique within the batch.
func NewBatch(id string, tasks []Task) (*TaskBatch, error) {
	if id == "" {
		id = uuid.NewString()
	}
	seen := make(map[string]struct{}, len(tasks))
	total := 0
	for _, task := range tasks {
		if _, ok := seen[task.id]; ok {
			return nil, fmt.Errorf("batch %s: %w: %s", id, fmerrors.ErrDuplicateTaskID, task.id)
		}
		seen[task.id] = struct{}{}
		total += task.EstimatedCost()
	}
	return &TaskBatch{
		id:        id,
		tasks:     append([]Task(nil), tasks...),
		totalCost: total,
	}, nil
}

func (b *TaskBatch) ID() string     { return b.id }
func (b *TaskBatch) Len() int       { return len(b.tasks) }
func (b *TaskBatch) TotalCost() int { return b.totalCost }

// Tasks returns the batch members in submission order.
func (b *TaskBatch) Tasks() []Task {
	return append([]Task(nil), b.tasks...)
}

// Split partitions the batch into n contiguous chunks of ceil(len/n) tasks;
// the last chunk may be smaller. When n <= 1 or the batch holds no more than
// n tasks, the whole batch is one chunk. Chunks follow index order only;
// estimated cost does not influence the partition.
func (b *TaskBatch) Split(n int) [][]Task {
	if n <= 1 || len(b.tasks) <= n {
		return [][]Task{b.Tasks()}
	}

	size := (len(b.tasks) + n - 1) / n
	chunks := make([][]Task, 0, n)
	for start := 0; start < len(b.tasks); start += size {
		end := min(start+size, len(b.tasks))
		chunks = append(chunks, append([]Task(nil), b.tasks[start:end]...))
	}
	return chunks
}
