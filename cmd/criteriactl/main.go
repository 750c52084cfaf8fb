// Command criteriactl evaluates findings against defect criteria bundles
// without a running server.
package main

import (
	"fmt"
	"os"

	"github.com/liamcoop/defectcriteria/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
