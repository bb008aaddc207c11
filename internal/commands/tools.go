package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"minai/internal/calc"
)

// RegisterTools installs calc and json.
func RegisterTools(reg *Registry, env Env) {
	fs := env.FS

	reg.Register(Spec{
		Name:        "calc",
		Description: "Evaluate a math expression",
		Usage:       "calc <expression>",
		Category:    CategoryTools,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			expr := strings.Join(inv.Args, " ")
			if strings.TrimSpace(expr) == "" {
				return "", usage("calc [expression]")
			}
			v, err := calc.Evaluate(expr)
			if err != nil {
				return "", failf("Error: Invalid expression")
			}
			return calc.Format(v), nil
		},
	})

	reg.Register(Spec{
		Name:        "json",
		Description: "Pretty-print JSON from a file",
		Usage:       "json <file>",
		Category:    CategoryTools,
		Stdin:       true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			raw, _, err := singleInput(fs, inv, "json <file>")
			if err != nil {
				return "", err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, []byte(strings.TrimSpace(raw)), "", "  "); err != nil {
				return "", failf("Error: Invalid JSON")
			}
			return out.String(), nil
		},
	})
}
