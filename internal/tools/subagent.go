package tools

import (
	"context"
	"fmt"

	"go-dross/pkg/models"
)

// Fleet runs subagents in their own namespaces.
type Fleet interface {
	Spawn(ctx context.Context, goal string) (string, error)
	Status(ctx context.Context, id string) (models.SubagentRecord, bool, error)
	List(ctx context.Context) ([]models.SubagentRecord, error)
}

func RegisterFleet(r *Registry, fleet Fleet) {
	r.MustRegister(&Tool{
		Name:        "spawn_subagent",
		Description: "Starts a subagent that pursues goal autonomously in its own namespace. Returns its id.",
		Schema: Schema{
			Required:   []string{"goal"},
			Properties: map[string]Property{"goal": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			id, err := fleet.Spawn(ctx, args.String("goal"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Subagent spawned with ID: %s", id), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "check_subagent_status",
		Description: "Returns the record of a subagent as JSON.",
		Schema: Schema{
			Required:   []string{"subagent_id"},
			Properties: map[string]Property{"subagent_id": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			id := args.String("subagent_id")
			rec, ok, err := fleet.Status(ctx, id)
			if err != nil {
				return "", err
			}
			if !ok {
				return fmt.Sprintf("Subagent %s not found.", id), nil
			}
			return toJSON(rec)
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_subagents",
		Description: "Lists every subagent with its status and runtime.",
		Schema:      Schema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			recs, err := fleet.List(ctx)
			if err != nil {
				return "", err
			}
			if len(recs) == 0 {
				return "No subagents.", nil
			}
			return toJSON(recs)
		},
	})
}
