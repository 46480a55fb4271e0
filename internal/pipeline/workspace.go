package pipeline

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/rotisserie/eris"
)

// Workspace lays out the scratch and staging directories of a batch and
// promotes finished scenarios into the output directory:
//
//	<root>/<scenario>/scratch   intermediate rasters
//	<root>/<scenario>/stage     final outputs until promotion
//	<output>/<scenario>         promoted outputs
type Workspace struct {
	Root   string
	Output string
}

// NewWorkspace returns a workspace rooted at root that promotes into output.
func NewWorkspace(root, output string) *Workspace {
	return &Workspace{Root: root, Output: output}
}

// ScratchDir is where a scenario's intermediate rasters are written.
func (w *Workspace) ScratchDir(scenario string) string {
	return filepath.Join(w.Root, scenario, "scratch")
}

// StageDir is where a scenario's final outputs are staged.
func (w *Workspace) StageDir(scenario string) string {
	return filepath.Join(w.Root, scenario, "stage")
}

// OutputDir is where a promoted scenario's outputs live.
func (w *Workspace) OutputDir(scenario string) string {
	return filepath.Join(w.Output, scenario)
}

// Prepare clears any previous workspace of scenario and creates empty scratch
// and stage directories.
func (w *Workspace) Prepare(scenario string) error {
	if err := os.RemoveAll(filepath.Join(w.Root, scenario)); err != nil {
		return eris.Wrapf(err, "pipeline: clear workspace %s", scenario)
	}
	for _, dir := range []string{w.ScratchDir(scenario), w.StageDir(scenario)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "pipeline: create %s", dir)
		}
	}
	return nil
}

// Promote replaces the scenario's output directory with its staged outputs.
func (w *Workspace) Promote(scenario string) (string, error) {
	src, dst := w.StageDir(scenario), w.OutputDir(scenario)
	if err := os.MkdirAll(w.Output, 0o755); err != nil {
		return "", eris.Wrapf(err, "pipeline: create %s", w.Output)
	}
	if err := os.RemoveAll(dst); err != nil {
		return "", eris.Wrapf(err, "pipeline: remove previous %s", dst)
	}
	err := os.Rename(src, dst)
	if errors.Is(err, syscall.EXDEV) {
		err = copyTree(src, dst)
	}
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: promote %s", scenario)
	}
	return dst, nil
}

// Discard removes the scenario's workspace, staged outputs included.
func (w *Workspace) Discard(scenario string) error {
	return eris.Wrapf(os.RemoveAll(filepath.Join(w.Root, scenario)), "pipeline: discard %s", scenario)
}

// Withdraw removes the promoted outputs of scenario.
func (w *Workspace) Withdraw(scenario string) error {
	return eris.Wrapf(os.RemoveAll(w.OutputDir(scenario)), "pipeline: withdraw %s", scenario)
}

// Release returns freed raster memory to the operating system between
// scenarios.
func Release() {
	runtime.GC()
	debug.FreeOSMemory()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
