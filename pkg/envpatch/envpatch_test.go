package envpatch

import (
	"errors"
	"os"
	"testing"

	"github.com/twpayne/go-vfs/vfst"
)

const hookPath = "/pyinstaller/hooks/hook-usb.py"

func newPatcher(t *testing.T) (*Patcher, *vfst.TestFS, func()) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		hookPath: "hook contents",
	})
	if err != nil {
		t.Fatal(err)
	}

	p, err := New(FS(fs))
	if err != nil {
		clean()
		t.Fatal(err)
	}
	return p, fs, clean
}

func resolveHook(fs *vfst.TestFS) Resolver {
	return func() (string, bool, error) {
		_, err := fs.Stat(hookPath)
		if os.IsNotExist(err) {
			return hookPath, false, nil
		}
		if err != nil {
			return "", false, err
		}
		return hookPath, true, nil
	}
}

func assertRestored(t *testing.T, fs *vfst.TestFS) {
	t.Helper()

	if _, err := fs.Stat(hookPath); err != nil {
		t.Errorf("original file missing after restore: %v", err)
	}
	if _, err := fs.Stat(hookPath + BackupSuffix); !os.IsNotExist(err) {
		t.Errorf("backup file still present after restore: err=%v", err)
	}
}

func TestWithPatchSuccess(t *testing.T) {
	p, fs, clean := newPatcher(t)
	defer clean()

	var patchedDuringBody bool
	err := p.WithPatch(resolveHook(fs), func() error {
		_, statErr := fs.Stat(hookPath)
		patchedDuringBody = os.IsNotExist(statErr)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !patchedDuringBody {
		t.Error("hook was not moved aside while the body ran")
	}

	assertRestored(t, fs)
}

func TestWithPatchBodyError(t *testing.T) {
	p, fs, clean := newPatcher(t)
	defer clean()

	bodyErr := errors.New("packager exited with status 1")
	err := p.WithPatch(resolveHook(fs), func() error {
		return bodyErr
	})
	if err != bodyErr {
		t.Errorf("expected body error to propagate: got=%v", err)
	}

	assertRestored(t, fs)
}

func TestWithPatchBodyPanic(t *testing.T) {
	p, fs, clean := newPatcher(t)
	defer clean()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		p.WithPatch(resolveHook(fs), func() error {
			panic("abrupt termination")
		})
	}()

	assertRestored(t, fs)
}

func TestWithPatchTargetAbsent(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	p, err := New(FS(fs))
	if err != nil {
		t.Fatal(err)
	}

	ran := false
	err = p.WithPatch(func() (string, bool, error) {
		return hookPath, false, nil
	}, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("body did not run when target was absent")
	}
}

func TestWithPatchReentrant(t *testing.T) {
	p, fs, clean := newPatcher(t)
	defer clean()

	for i := 0; i < 2; i++ {
		if err := p.WithPatch(resolveHook(fs), func() error { return nil }); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		assertRestored(t, fs)
	}
}
