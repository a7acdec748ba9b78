package pipeline

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/lucasnoah/rvstage/internal/fileset"
	"github.com/lucasnoah/rvstage/internal/process"
)

// Stage is one discover -> stage -> invoke step. Every field but Name is
// optional, and the parts run in that order: Ensure, Inputs, CopyTo, Tool.
type Stage struct {
	Name        string
	Description string // progress line logged when the stage starts

	// Ensure lists directories that must exist before the stage does anything.
	Ensure []string
	// Inputs selects the files the stage operates on.
	Inputs *fileset.Pattern
	// CopyTo, when set, receives a copy of every input. The tool then sees
	// the staged copies rather than the originals.
	CopyTo string
	// Tool is invoked once with all inputs, or once per input when PerFile.
	Tool    *Tool
	PerFile bool
}

// Tool is an external executable plus its argument convention.
//
// Args is a template. An element that is exactly "{inputs}" expands to every
// input path; "{input}" is replaced by the current file in per-file mode;
// "{staging}" by the stage's staging directory and "{workdir}" by the
// pipeline working directory.
type Tool struct {
	Command []string `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
}

const (
	tokenInputs  = "{inputs}"
	tokenInput   = "{input}"
	tokenStaging = "{staging}"
	tokenWorkDir = "{workdir}"
)

type toolVars struct {
	inputs  []string
	input   string
	staging string
	workDir string
}

func (t *Tool) command(v toolVars) (process.Command, error) {
	if len(t.Command) == 0 || t.Command[0] == "" {
		return process.Command{}, errors.New("tool has no command")
	}
	r := strings.NewReplacer(
		tokenInputs, strings.Join(v.inputs, " "),
		tokenInput, v.input,
		tokenStaging, v.staging,
		tokenWorkDir, v.workDir,
	)

	args := append([]string{}, t.Command[1:]...)
	for _, a := range t.Args {
		if a == tokenInputs {
			args = append(args, v.inputs...)
			continue
		}
		args = append(args, r.Replace(a))
	}
	return process.Command{Path: t.Command[0], Args: args, Dir: v.workDir}, nil
}

// Validate reports structural problems that would make the stage unrunnable.
func (s *Stage) Validate() error {
	if s.Name == "" {
		return errors.New("stage has no name")
	}
	if s.CopyTo != "" && s.Inputs == nil {
		return fmt.Errorf("stage %s: copy_to without inputs", s.Name)
	}
	if s.PerFile && s.Tool == nil {
		return fmt.Errorf("stage %s: per-file without a tool", s.Name)
	}
	if s.Inputs != nil {
		if _, err := path.Match(s.Inputs.Glob, ""); err != nil || s.Inputs.Glob == "" {
			return fmt.Errorf("stage %s: bad input pattern %q", s.Name, s.Inputs.Glob)
		}
	}
	if s.Tool != nil && len(s.Tool.Command) == 0 {
		return fmt.Errorf("stage %s: tool has no command", s.Name)
	}
	return nil
}
