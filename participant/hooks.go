package participant

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// AskUserFunc is the injected user-interaction hook (spec §6): given the
// proposed image and the participant's slice of source files, decide
// whether those files may be relinquished. It is invoked from inside vote
// handling and may itself block.
type AskUserFunc func(image []byte, files []string) bool

// AutoApprove always approves. Used as the default for tests and for any
// deployment that wants a participant with no human in the loop.
func AutoApprove(_ []byte, _ []string) bool { return true }

// StdinPrompt asks on stdout/stdin, pausing the vote the way the teacher's
// client/reader.go paces its CSV replay with fmt.Scanln() between
// transaction sets.
func StdinPrompt(out io.Writer, in io.Reader) AskUserFunc {
	reader := bufio.NewReader(in)
	return func(image []byte, files []string) bool {
		fmt.Fprintf(out, "commit proposes consuming %d file(s) (%s) to build a %d-byte collage. allow? [y/N]: ",
			len(files), strings.Join(files, ", "), len(image))
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
