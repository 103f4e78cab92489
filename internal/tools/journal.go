package tools

import (
	"context"
	"fmt"
	"strings"
)

const defaultJournalEntries = 5

func RegisterJournal(r *Registry) {
	r.MustRegister(&Tool{
		Name:        "write_journal",
		Description: "Appends an entry to the agent's journal.",
		Schema: Schema{
			Required:   []string{"entry"},
			Properties: map[string]Property{"entry": {Type: TypeString}},
		},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			if err := env.Journal.Write(args.String("entry")); err != nil {
				return "", err
			}
			return "Journal entry saved.", nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "read_journal",
		Description: "Returns the last N journal entries.",
		Schema: Schema{Properties: map[string]Property{
			"last_n": {Type: TypeInteger, Default: defaultJournalEntries},
		}},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			n := args.Int("last_n")
			if n < 1 {
				n = defaultJournalEntries
			}
			entries, err := env.Journal.Read(n)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "Journal is empty.", nil
			}
			lines := make([]string, 0, len(entries))
			for _, e := range entries {
				lines = append(lines, fmt.Sprintf("[%s] %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Entry))
			}
			return strings.Join(lines, "\n"), nil
		},
	})
}
