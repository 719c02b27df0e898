package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rexliu/idelink/pkg/core"
)

func TestPromptChooser(t *testing.T) {
	candidates := []core.Instance{
		{Port: 52342, IDE: "vscode", WorkspacePath: "/a"},
		{Port: 52343, IDE: "visualstudio", WorkspacePath: "/b", SolutionPath: "/b/app.sln"},
	}
	cases := []struct {
		name  string
		input string
		want  int
		ok    bool
	}{
		{name: "second", input: "2\n", want: 1, ok: true},
		{name: "retry after invalid", input: "9\nx\n1\n", want: 0, ok: true},
		{name: "no trailing newline", input: "2", want: 1, ok: true},
		{name: "empty declines", input: "\n"},
		{name: "eof declines", input: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &promptChooser{in: strings.NewReader(tc.input), out: &out}
			got, ok := p.ChooseOne(context.Background(), candidates)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, candidates[tc.want], got)
			}
			require.Contains(t, out.String(), "/b/app.sln")
		})
	}
}
