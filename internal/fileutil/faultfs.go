package fileutil

import (
	"os"
	"sync"

	"github.com/spf13/afero"
)

// Op names a filesystem operation that FaultFs can fail.
type Op string

const (
	OpOpen   Op = "open"
	OpCreate Op = "create"
	OpRename Op = "rename"
	OpRemove Op = "remove"
	OpMkdir  Op = "mkdir"
)

// FaultRule decides whether op on name should fail, and with which error.
// target is the destination for renames and empty otherwise. A nil return
// lets the operation through.
type FaultRule func(op Op, name, target string) error

// FaultFs wraps an afero.Fs and fails selected operations. It is used to
// exercise crash and partial-failure paths without a real broken disk.
type FaultFs struct {
	afero.Fs

	mu    sync.Mutex
	rules []FaultRule
}

// NewFaultFs wraps base. A nil base is an in-memory filesystem.
func NewFaultFs(base afero.Fs) *FaultFs {
	if base == nil {
		base = afero.NewMemMapFs()
	}
	return &FaultFs{Fs: base}
}

// Inject adds a rule. Rules are consulted in order; the first error wins.
func (f *FaultFs) Inject(rule FaultRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule)
}

// Reset removes all rules.
func (f *FaultFs) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// FailOn returns a rule failing op whenever match(name) holds.
func FailOn(op Op, match func(name string) bool, err error) FaultRule {
	return func(o Op, name, _ string) error {
		if o == op && match(name) {
			return &os.PathError{Op: string(op), Path: name, Err: err}
		}
		return nil
	}
}

// FailRenameTo returns a rule failing renames whose destination matches.
func FailRenameTo(match func(target string) bool, err error) FaultRule {
	return func(o Op, name, target string) error {
		if o == OpRename && match(target) {
			return &os.LinkError{Op: "rename", Old: name, New: target, Err: err}
		}
		return nil
	}
}

func (f *FaultFs) check(op Op, name, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rule := range f.rules {
		if err := rule(op, name, target); err != nil {
			return err
		}
	}
	return nil
}

func (f *FaultFs) Name() string { return "FaultFs" }

func (f *FaultFs) Create(name string) (afero.File, error) {
	if err := f.check(OpCreate, name, ""); err != nil {
		return nil, err
	}
	return f.Fs.Create(name)
}

func (f *FaultFs) Open(name string) (afero.File, error) {
	if err := f.check(OpOpen, name, ""); err != nil {
		return nil, err
	}
	return f.Fs.Open(name)
}

func (f *FaultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	op := OpOpen
	if flag&(os.O_CREATE|os.O_WRONLY|os.O_RDWR) != 0 {
		op = OpCreate
	}
	if err := f.check(op, name, ""); err != nil {
		return nil, err
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *FaultFs) Rename(oldname, newname string) error {
	if err := f.check(OpRename, oldname, newname); err != nil {
		return err
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *FaultFs) Remove(name string) error {
	if err := f.check(OpRemove, name, ""); err != nil {
		return err
	}
	return f.Fs.Remove(name)
}

func (f *FaultFs) Mkdir(name string, perm os.FileMode) error {
	if err := f.check(OpMkdir, name, ""); err != nil {
		return err
	}
	return f.Fs.Mkdir(name, perm)
}

func (f *FaultFs) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdir, path, ""); err != nil {
		return err
	}
	return f.Fs.MkdirAll(path, perm)
}
