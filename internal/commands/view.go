package commands

import (
	"context"
	"flag"
	"fmt"

	"dcc/internal/service"
)

// viewFlags selects the category/filter view that task numbers refer to.
type viewFlags struct {
	category string
	filter   string
}

func (v *viewFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&v.category, "category", "", "")
	fs.StringVar(&v.category, "c", "", "")
	fs.StringVar(&v.filter, "filter", "", "")
	fs.StringVar(&v.filter, "f", "", "")
}

// query builds the view query for userID. An empty category means All.
func (v *viewFlags) query(userID string) (service.Query, error) {
	category := service.CategoryAll
	if v.category != "" {
		c, ok := service.ParseCategory(v.category)
		if !ok {
			return service.Query{}, fmt.Errorf("invalid category: %s", v.category)
		}
		category = c
	}
	filter, ok := service.ParseFilter(v.filter)
	if !ok {
		return service.Query{}, fmt.Errorf("invalid filter: %s", v.filter)
	}
	return service.Query{UserID: userID, Category: category, Filter: filter}, nil
}

// errOutOfRange marks a task number past the end of the view.
type errOutOfRange int

func (e errOutOfRange) Error() string {
	return fmt.Sprintf("task number out of range: %d", int(e))
}

// findTaskByNumber returns the num-th (1-based) task of the view selected by q.
func findTaskByNumber(ctx context.Context, svc service.Service, q service.Query, num int) (service.Task, error) {
	tasks, err := svc.ListTasks(ctx, q)
	if err != nil {
		return service.Task{}, err
	}
	if num < 1 || num > len(tasks) {
		return service.Task{}, errOutOfRange(num)
	}
	return tasks[num-1], nil
}
