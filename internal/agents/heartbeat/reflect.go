package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go-dross/internal/memory"
	"go-dross/pkg/data"
	"go-dross/pkg/models"
)

const (
	minRawReflection = 40
	minLesson        = 30
	minFact          = 15
)

// reflect analyzes a finished goal, stores its facts and lesson and registers a
// suggested tool. It reports the outcome as text and never fails.
func (s *Scheduler) reflect(ctx context.Context, goal models.Goal) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			result = fmt.Sprintf("Reflection failed: %v", rec)
		}
	}()

	goalData, err := json.MarshalIndent(goal, "", "  ")
	if err != nil {
		return fmt.Sprintf("Reflection failed: %v", err)
	}
	hRes := s.handler.Reflect(ctx, string(goalData))
	if hRes.Error != nil {
		s.l.Warn().Err(hRes.Error).Msg("reflection query failed")
	}
	raw := hRes.Answer

	var r models.Reflection
	if err := data.ExtractJSON(raw, &r); err != nil {
		if len(strings.TrimSpace(raw)) < minRawReflection {
			return "Skipped trivial reflection."
		}
		if _, err := s.ns.Memory.Save(ctx, "Reflection (unparsed): "+truncate(raw, 500), map[string]string{"type": memory.TypeSelfImprovement}, true); err != nil {
			return fmt.Sprintf("Reflection failed: %v", err)
		}
		if err := s.ns.Journal.Write("Reflection: " + truncate(raw, 300)); err != nil {
			s.l.Warn().Err(err).Msg("unable to write journal")
		}
		return "Reflection saved (raw): " + truncate(raw, 200)
	}

	s.saveFacts(ctx, r.KeyFacts)

	lesson := r.Lessons
	if lesson == "" {
		lesson = "No specific lesson."
	}
	outcome := r.Outcome
	if outcome == "" {
		outcome = "unknown"
	}
	text := fmt.Sprintf("LESSON [%s]: %s. Worked: %s. Gaps: %s.", outcome, lesson, r.WhatWorked, r.WhatFailed)
	if len(strings.TrimSpace(lesson)) < minLesson {
		return "Skipped trivial lesson."
	}
	if _, err := s.ns.Memory.Save(ctx, text, map[string]string{"type": memory.TypeSelfImprovement, "outcome": outcome}, true); err != nil {
		return fmt.Sprintf("Reflection failed: %v", err)
	}

	entry, err := json.Marshal(r)
	if err == nil {
		err = s.ns.Journal.Write(string(entry))
	}
	if err != nil {
		s.l.Warn().Err(err).Msg("unable to write journal")
	}

	if t := r.SuggestedTool; t != nil && t.Code != "" {
		desc := t.Description
		if desc == "" {
			desc = "Auto-created tool"
		}
		out := s.registry.Execute(ctx, "create_tool", map[string]any{
			"name":        t.Name,
			"description": desc,
			"code":        t.Code,
		}, s.ns.Env())
		text += " | Auto-created tool: " + out
	}
	return text
}

// saveFacts stores key facts as atomic memories. Facts given as objects are
// already structured and skip the length filter.
func (s *Scheduler) saveFacts(ctx context.Context, facts []any) {
	for _, raw := range facts {
		var fact string
		switch f := raw.(type) {
		case string:
			fact = strings.TrimSpace(f)
			if len(fact) < minFact {
				continue
			}
		case map[string]any:
			fact = strings.TrimSpace(data.Flatten(f))
			if fact == "" {
				continue
			}
		default:
			continue
		}
		if _, err := s.ns.Memory.Save(ctx, fact, map[string]string{"type": memory.TypeAtomicFact}, true); err != nil {
			s.l.Warn().Err(err).Msg("unable to save fact")
		}
	}
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
