// Command restyle restyles images through a generation endpoint that is
// slow and sometimes overloaded, and can run a simulated one.
//
// Usage:
//
//	restyle [--json] <command> [flags]
//
// Commands:
//
//	serve     Run the simulated generate endpoint
//	generate  Restyle an image, retrying while the model is overloaded
//	history   List, show, remove or reset recent generations
//	version   Print build information
package main

import (
	"os"

	"github.com/amp-labs/restyle/cli"
	"github.com/amp-labs/restyle/envutil"
	"github.com/amp-labs/restyle/shutdown"
)

func main() {
	ctx := shutdown.SetupHandler()

	if err := newRootCmd(envutil.OS()).ExecuteContext(ctx); err != nil {
		cli.NewOutput(false).Error(err.Error())
		os.Exit(1)
	}
}
