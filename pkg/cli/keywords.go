package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/keyflow/pkg/keyword"
	"github.com/devicelab-dev/keyflow/pkg/session"
)

var keywordsCommand = &cli.Command{
	Name:  "keywords",
	Usage: "List the registered keywords",
	Description: `Print every registered keyword with its slug and parameter
specification. With --json the full descriptors are emitted, which is
the same shape the MCP list_keywords tool returns.`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Emit full descriptors as JSON",
		},
	},
	Action: keywordsAction,
}

func keywordsAction(c *cli.Context) error {
	manager, err := session.NewManager(nil, nil, nil)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer manager.Shutdown()

	descriptors := manager.Engine().Registry().All()
	if c.Bool("json") {
		encoded, err := json.MarshalIndent(descriptors, "", "  ")
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Println(string(encoded))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%sKEYWORD\tSLUG\tPARAMETERS%s\n", color(colorBold), color(colorReset))
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Slug, paramSummary(d))
	}
	w.Flush()
	fmt.Printf("\n%d keywords\n", len(descriptors))
	return nil
}

func paramSummary(d *keyword.Descriptor) string {
	if len(d.Params) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		if p.Optional {
			parts = append(parts, "["+p.Name+"]")
		} else {
			parts = append(parts, p.Name)
		}
	}
	return strings.Join(parts, ", ")
}
