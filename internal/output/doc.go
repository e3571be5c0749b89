// Package output provides structured output handling for the briefship CLI.
//
// Every command renders through a Printer that switches between styled
// human output and JSON (the --json flag):
//
//	printer := output.NewPrinter(cmd.OutOrStdout(), isJSONMode(cmd), useColor(cmd))
//	printer.Step("push", "3 commits to origin/main")
//	printer.StepDone("push", nil)
//	printer.Block("stdout", invocation.Stdout)
//
// Progress lines (Step, StepDone) and warnings go to the stderr writer set
// with WithStderr and are suppressed in JSON mode, so piped JSON stays a
// single document.
//
// # Exit Codes
//
//	output.ExitSuccess       // 0
//	output.ExitUserError     // 1: bad args, missing config
//	output.ExitSystemError   // 2: git or AWS failure, I/O
//	output.ExitConflict      // 3: dirty tree, instance not deployable
//	output.ExitRemoteFailure // 4: remote command did not succeed
//
// Errors built with NewUserError, NewSystemError, NewConflictError and
// NewRemoteError carry their code through to os.Exit and to the JSON
// error document.
package output
