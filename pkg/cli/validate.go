package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/keyflow/pkg/session"
	"github.com/devicelab-dev/keyflow/pkg/suite"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Statically check suite files without executing them",
	ArgsUsage: "<suite.yaml|dir>...",
	Description: `Parse the given suite files and check keywords, parameters, module
references, template references and static module cycles against the
keyword registry. Nothing executes and no driver is created.

Examples:
  keyflow validate checkout.yaml
  keyflow validate suites/`,
	Action: validateAction,
}

func validateAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("validate requires at least one suite file or directory", 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	manager, err := session.NewManager(cfg, nil, nil)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer manager.Shutdown()

	validator := suite.NewValidator(manager.Engine().Registry())
	total, bad := 0, 0
	for _, path := range c.Args().Slice() {
		result := validator.Validate(path)
		total += len(result.Suites)
		if result.IsValid() {
			for _, st := range result.Suites {
				fmt.Printf("%s✓%s %s (%d modules)\n",
					color(colorGreen), color(colorReset), st.SourcePath, len(st.Modules))
			}
			continue
		}
		bad++
		for _, err := range result.Errors {
			fmt.Printf("%s✗%s %s\n", color(colorRed), color(colorReset), err)
		}
	}

	if bad > 0 {
		return cli.Exit("validation failed", 1)
	}
	fmt.Printf("\n%d suite(s) valid\n", total)
	return nil
}

// validateSuites parses and validates the given paths, returning the
// suites in discovery order or the combined error list.
func validateSuites(manager *session.Manager, paths []string) ([]*suite.Suite, error) {
	validator := suite.NewValidator(manager.Engine().Registry())
	var suites []*suite.Suite
	var firstErr error
	errCount := 0
	for _, path := range paths {
		result := validator.Validate(path)
		suites = append(suites, result.Suites...)
		for _, err := range result.Errors {
			if firstErr == nil {
				firstErr = err
			}
			errCount++
			fmt.Printf("%s✗%s %s\n", color(colorRed), color(colorReset), err)
		}
	}
	if firstErr != nil {
		return nil, fmt.Errorf("%d validation error(s), first: %w", errCount, firstErr)
	}
	if len(suites) == 0 {
		return nil, fmt.Errorf("no suite files found under %v", paths)
	}
	return suites, nil
}
