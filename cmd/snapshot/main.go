// Command snapshot copies Athena query results into warehouse tables as dated
// daily snapshots and mails a summary of every run.
//
//	snapshot serve      # cron-driven service (default schedule 06:00 daily)
//	snapshot run        # one run now; exit status 1 when a job failed
//	snapshot validate   # lint the configuration
//	snapshot jobs       # list the configured jobs
package main

import (
	"errors"
	"fmt"
	"os"

	// register all warehouse backends with the storage factory.
	_ "github.com/rlscode/athena-snapshop/internal/storage/all"

	"github.com/rlscode/athena-snapshop/internal/config"
)

// exitCode ends the process with a status but no error message.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	args := os.Args[1:]
	getenv, err := config.WithEnvFile(os.Getenv, config.EnvFileArg(args, os.Getenv))
	if err != nil {
		fatalf("%v", err)
	}

	root := newRootCmd(getenv)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fatalf("%v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
