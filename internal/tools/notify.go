package tools

import (
	"context"
)

// Notifier delivers a message to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

func RegisterNotifier(r *Registry, n Notifier) {
	r.MustRegister(&Tool{
		Name:        "send_telegram_message",
		Description: "Sends a message to the operator's Telegram chat.",
		Schema: Schema{
			Required:   []string{"message"},
			Properties: map[string]Property{"message": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			if err := n.Notify(ctx, args.String("message")); err != nil {
				return "", err
			}
			return "Message sent.", nil
		},
	})
}
