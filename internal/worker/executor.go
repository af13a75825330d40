package worker

import (
	"context"

	"github.com/forgestack/mindvault/pkg/models"
)

// Executor performs the actual work for one job type. It receives the job
// record (metadata included) and returns a structured result payload, or an
// error when the job should go through the fail/retry path. The context is
// cancelled when the pool shuts down; long-running executors should observe
// it and abort.
type Executor func(ctx context.Context, job *models.Job) (map[string]any, error)

// Registry maps each job type to its executor. Types without an entry fail
// at execution time rather than at dispatch.
type Registry map[models.JobType]Executor

// pollOrder returns the registered types in the fixed round-robin order the
// pool drains them.
func (r Registry) pollOrder() []models.JobType {
	order := make([]models.JobType, 0, len(r))
	for _, t := range models.AllJobTypes {
		if _, ok := r[t]; ok {
			order = append(order, t)
		}
	}
	return order
}
