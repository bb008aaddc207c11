package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"minai/internal/vfs"
)

func noop(context.Context, *Invocation) (string, error) { return "", nil }

func TestRegistryOrderAndReplace(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Spec{Name: "zeta", Handler: noop})
	reg.Register(Spec{Name: "alpha", Handler: noop, Category: CategoryTools})
	reg.Register(Spec{Name: "zeta", Handler: noop, Description: "second"})

	var order []string
	for _, s := range reg.GetAll() {
		order = append(order, s.Name)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha"}, order); diff != "" {
		t.Fatalf("registration order mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"alpha", "zeta"}, reg.Names())
	require.Equal(t, 2, reg.Len())

	spec, ok := reg.Get("zeta")
	require.True(t, ok)
	require.Equal(t, "second", spec.Description)
	require.Equal(t, "General", spec.Category)
}

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	reg := NewRegistry()
	require.Panics(t, func() { reg.Register(Spec{Name: "x"}) })
	require.Panics(t, func() { reg.Register(Spec{Handler: noop}) })
}

func TestAliasTable(t *testing.T) {
	reg := NewRegistry()
	reg.SetAlias("ll", "ls -la")
	reg.SetAlias("g", "grep")
	reg.SetAlias("ll", "ls -l")

	require.Equal(t, []Alias{{"ll", "ls -l"}, {"g", "grep"}}, reg.Aliases())

	reg.RemoveAlias("ll")
	_, ok := reg.GetAlias("ll")
	require.False(t, ok)
	require.Equal(t, []Alias{{"g", "grep"}}, reg.Aliases())

	reg.ClearAliases()
	require.Empty(t, reg.Aliases())
}

func TestParseAliasLine(t *testing.T) {
	tests := []struct {
		line     string
		name     string
		expanded string
		ok       bool
	}{
		{line: "ll=ls -la", name: "ll", expanded: "ls -la", ok: true},
		{line: `  gs="git status"  `, name: "gs", expanded: "git status", ok: true},
		{line: "..=cd ..", name: "..", expanded: "cd ..", ok: true},
		{line: "# comment=yes"},
		{line: ""},
		{line: "novalue="},
		{line: "=x"},
		{line: "two words=x"},
		{line: "empty=''"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, exp, ok := ParseAliasLine(tt.line)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.name, name)
			require.Equal(t, tt.expanded, exp)
		})
	}
}

func TestInvocationOperandsExcludePipedWords(t *testing.T) {
	inv := &Invocation{Args: []string{"txt", "a.txt", "b.txt"}, Explicit: 1, Piped: true}
	require.Equal(t, []string{"txt"}, inv.Operands())
	inv.Piped = false
	require.Equal(t, inv.Args, inv.Operands())
	require.Equal(t, "", inv.Arg(7))
}

func TestIsUserError(t *testing.T) {
	fsErr := &vfs.Error{Kind: vfs.NotFound, Path: "x"}
	require.True(t, IsUserError(fsErr))
	require.True(t, IsUserError(failf("nope")))
	require.True(t, IsUserError(fmt.Errorf("wrapped: %w", fsErr)))
	require.True(t, IsUserError(errors.Join(fsErr, failf("nope"))))
	require.False(t, IsUserError(errors.Join(fsErr, errors.New("boom"))))
	require.False(t, IsUserError(errors.New("boom")))
	require.False(t, IsUserError(nil))
}
