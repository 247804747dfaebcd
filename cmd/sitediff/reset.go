package main

import (
	"fmt"

	"github.com/fwojciec/sitediff"
)

// Run executes the reset command.
func (c *ResetCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: use --force to confirm reset\n")
		return sitediff.Errorf(sitediff.EINVALID, "use --force to confirm reset")
	}

	if _, err := loadSites(c.Config, c.Site); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitediff.ErrorMessage(err))
		return err
	}

	if err := deps.State.Reset(deps.Ctx, c.Site); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitediff.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Reset state for %q; the next run reports every item as new\n", c.Site)
	return nil
}
