package plan

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func validPlan() *Plan {
	return &Plan{
		ID:   "plan-1",
		Goal: "organize project files",
		Steps: []Step{
			{ID: "a", Service: "file", Operation: "list", Estimate: Duration(time.Second)},
			{ID: "b", Service: "file", Operation: "copy", DependsOn: []string{"a"}, Estimate: Duration(2 * time.Second)},
			{ID: "c", Service: "task", Operation: "create", DependsOn: []string{"b"}},
		},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validPlan().Validate())
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Plan)
		reason string
	}{
		{"empty steps", func(p *Plan) { p.Steps = nil }, "no steps"},
		{"missing plan id", func(p *Plan) { p.ID = "" }, "missing plan id"},
		{"duplicate step id", func(p *Plan) { p.Steps[1].ID = "a" }, "duplicate"},
		{"missing descriptor", func(p *Plan) { p.Steps[0].Operation = "" }, "capability descriptor"},
		{"dangling dependency", func(p *Plan) { p.Steps[1].DependsOn = []string{"zz"} }, "unknown step"},
		{"self dependency", func(p *Plan) { p.Steps[1].DependsOn = []string{"b"} }, "depends on itself"},
		{"negative retries", func(p *Plan) { p.Steps[0].MaxRetries = intPtr(-1) }, "negative max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Reason, tt.reason)
		})
	}
}

func TestValidateAllowsCycles(t *testing.T) {
	// Cycles pass shape validation; the scheduler detects them at runtime.
	p := &Plan{
		ID: "plan-cycle",
		Steps: []Step{
			{ID: "a", Service: "file", Operation: "list", DependsOn: []string{"b"}},
			{ID: "b", Service: "file", Operation: "list", DependsOn: []string{"a"}},
		},
	}
	require.NoError(t, p.Validate())

	cycle := p.FindCycle()
	require.NotEmpty(t, cycle)
	assert.Len(t, cycle, 2)
}

func TestFindCycleAcyclic(t *testing.T) {
	assert.Nil(t, validPlan().FindCycle())
}

func TestRootsAndEstimate(t *testing.T) {
	p := validPlan()
	assert.Equal(t, []string{"a"}, p.Roots())
	assert.Equal(t, 3*time.Second, p.TotalEstimate())
}

func TestParseYAML(t *testing.T) {
	doc := []byte(`
id: plan-yaml
goal: fetch and file
created_by: carol
steps:
  - id: fetch
    service: web
    operation: fetch
    params:
      url: https://example.com
    timeout: 10s
    max_retries: 2
  - id: save
    service: file
    operation: write
    depends_on: [fetch]
    estimate: 500ms
`)

	p, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "plan-yaml", p.ID)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "web:fetch", p.Steps[0].Descriptor())
	assert.Equal(t, 10*time.Second, p.Steps[0].Timeout.Duration())
	require.NotNil(t, p.Steps[0].MaxRetries)
	assert.Equal(t, 2, *p.Steps[0].MaxRetries)
	assert.Equal(t, 500*time.Millisecond, p.Steps[1].Estimate.Duration())
	assert.False(t, p.CreatedAt.IsZero())
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("id: x\nsteps:\n  - id: a\n    service: file\n"))
	require.Error(t, err)

	_, err = Parse([]byte("{{not yaml"))
	require.Error(t, err)
}

func TestParseGeneratesID(t *testing.T) {
	p, err := Parse([]byte("steps:\n  - id: a\n    service: file\n    operation: list\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}
