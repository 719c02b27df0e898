package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rexliu/idelink/pkg/core"
)

// promptChooser lists candidates and reads a 1-based index. An empty answer or EOF declines.
type promptChooser struct {
	in  io.Reader
	out io.Writer
}

func (p *promptChooser) ChooseOne(ctx context.Context, candidates []core.Instance) (core.Instance, bool) {
	printInstances(p.out, candidates)
	reader := bufio.NewReader(p.in)
	for ctx.Err() == nil {
		fmt.Fprintf(p.out, "choose instance [1-%d]: ", len(candidates))
		answer, err := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return core.Instance{}, false
		}
		n, convErr := strconv.Atoi(answer)
		if convErr == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], true
		}
		if err != nil {
			return core.Instance{}, false
		}
		fmt.Fprintf(p.out, "invalid choice %q\n", answer)
	}
	return core.Instance{}, false
}

func printInstances(w io.Writer, instances []core.Instance) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tIDE\tVERSION\tPORT\tPID\tWORKSPACE")
	for i, inst := range instances {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", i+1, inst.IDE, inst.Version, inst.Port, inst.PID, inst.DisplayPath())
	}
	_ = tw.Flush()
}
