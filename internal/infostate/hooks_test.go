package infostate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brianly1003/notepadtt/internal/storage"
)

func storageFilterExcluding(patterns ...string) storage.Filter {
	return storage.Filter{Exclude: patterns}
}

func TestHooks_NoopBeforeLoad(t *testing.T) {
	s, root := newTestState(t, map[string]string{"a.txt": "a"})
	writeFile(t, root, "b.txt", "b")

	if s.NotifyExternalCreate("b.txt") {
		t.Error("create hook acted before load")
	}
	if s.NotifyExternalDelete("a.txt") {
		t.Error("delete hook acted before load")
	}
	if b, id := s.NotifyExternalRename("a.txt", "c.txt"); b || id != "" {
		t.Error("rename hook acted before load")
	}
	if s.Loaded() {
		t.Error("hooks should not build the snapshot")
	}
}

func TestNotifyExternalCreate(t *testing.T) {
	s, root := newTestState(t, map[string]string{"a.txt": "a"})
	before := mustSnapshot(t, s)

	writeFile(t, root, "b.txt", "b")
	if !s.NotifyExternalCreate("b.txt") {
		t.Fatal("NotifyExternalCreate() = false, want true")
	}
	if s.NotifyExternalCreate("b.txt") {
		t.Error("second create of a tracked file should be a no-op")
	}

	after := mustSnapshot(t, s)
	if filenames(after) != "a.txt,b.txt" || !after.TabInfos[1].IsProtected {
		t.Errorf("tabs = %+v", after.TabInfos)
	}
	if after.ChangeToken == before.ChangeToken {
		t.Error("token not refreshed")
	}
	if got := readMetadata(t, root); got != "\\A\\Pa.txt\n\\Pb.txt\n" {
		t.Errorf("metadata = %q", got)
	}
}

func TestNotifyExternalCreate_Ignored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	s := newStateAt(root, storageFilterExcluding("*.tmp"))
	mustSnapshot(t, s)

	writeFile(t, root, "x.tmp", "x")
	if s.NotifyExternalCreate("x.tmp") {
		t.Error("filtered file was added")
	}
	if s.NotifyExternalCreate("missing.txt") {
		t.Error("missing file was added")
	}

	s.created.Mark("new 5")
	writeFile(t, root, "new 5", "")
	if s.NotifyExternalCreate("new 5") {
		t.Error("file created for a client was treated as external")
	}
}

func TestNotifyExternalDelete(t *testing.T) {
	s, root := newTestState(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	info := mustSnapshot(t, s)

	os.Remove(filepath.Join(root, "a.txt"))
	if !s.NotifyExternalDelete("a.txt") {
		t.Fatal("NotifyExternalDelete() = false, want true")
	}
	if s.NotifyExternalDelete("a.txt") {
		t.Error("second delete should be a no-op")
	}

	after := mustSnapshot(t, s)
	if filenames(after) != "b.txt" {
		t.Errorf("tabs = %s", filenames(after))
	}
	if after.Active() != info.TabInfos[1].FileID {
		t.Error("active tab should be re-promoted to the last tab")
	}

	if s.NotifyExternalDelete("b.txt") {
		t.Error("delete of a file that still exists should be a no-op")
	}
}

func TestNotifyExternalRename(t *testing.T) {
	s, root := newTestState(t, map[string]string{"a.txt": "a"})
	info := mustSnapshot(t, s)
	id := info.TabInfos[0].FileID

	os.Rename(filepath.Join(root, "a.txt"), filepath.Join(root, "z.txt"))
	broadcast, replaced := s.NotifyExternalRename("a.txt", "z.txt")
	if !broadcast || replaced != "" {
		t.Fatalf("NotifyExternalRename() = %v, %q", broadcast, replaced)
	}

	if name, ok := s.FilenameFor(id); !ok || name != "z.txt" {
		t.Errorf("FilenameFor() = %q, %v, want z.txt", name, ok)
	}
	if got := readMetadata(t, root); got != "\\A\\Pz.txt\n" {
		t.Errorf("metadata = %q", got)
	}
}

func TestNotifyExternalRename_OntoTrackedName(t *testing.T) {
	s, root := newTestState(t, map[string]string{"a.txt": "from A", "b.txt": "from B"})
	info := mustSnapshot(t, s)
	idA, idB := info.TabInfos[0].FileID, info.TabInfos[1].FileID

	os.Rename(filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt"))
	broadcast, replaced := s.NotifyExternalRename("a.txt", "b.txt")
	if !broadcast {
		t.Error("broadcast = false, want true")
	}
	if replaced != idB {
		t.Errorf("replaced = %q, want %q", replaced, idB)
	}

	after := mustSnapshot(t, s)
	if filenames(after) != "b.txt" {
		t.Fatalf("tabs = %s, want exactly one b.txt", filenames(after))
	}
	if _, ok := s.FilenameFor(idA); ok {
		t.Error("old-name identifier should be gone")
	}
	if id, _ := s.IdentifierFor("b.txt"); id != idB {
		t.Errorf("b.txt resolves to %q, want %q", id, idB)
	}
	data, _ := os.ReadFile(filepath.Join(root, "b.txt"))
	if string(data) != "from A" {
		t.Errorf("b.txt = %q", data)
	}
}

func TestNotifyExternalRename_OutOfTracking(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	s := newStateAt(root, storageFilterExcluding("*.bak"))
	mustSnapshot(t, s)

	os.Rename(filepath.Join(root, "a.txt"), filepath.Join(root, "a.bak"))
	broadcast, _ := s.NotifyExternalRename("a.txt", "a.bak")
	if !broadcast {
		t.Fatal("broadcast = false, want true")
	}
	after := mustSnapshot(t, s)
	if len(after.TabInfos) != 0 || after.ActiveFileID != nil {
		t.Errorf("snapshot = %+v, want empty", after)
	}
}

func TestNotifyExternalRename_UntrackedSources(t *testing.T) {
	s, root := newTestState(t, map[string]string{"a.txt": "a"})
	info := mustSnapshot(t, s)

	// temp file renamed over a tracked file
	writeFile(t, root, ".a.txt.tmp", "new text")
	os.Rename(filepath.Join(root, ".a.txt.tmp"), filepath.Join(root, "a.txt"))
	broadcast, replaced := s.NotifyExternalRename(".a.txt.tmp", "a.txt")
	if broadcast || replaced != info.TabInfos[0].FileID {
		t.Errorf("NotifyExternalRename() = %v, %q", broadcast, replaced)
	}

	// untracked file renamed to a new name
	writeFile(t, root, "x.part", "x")
	os.Rename(filepath.Join(root, "x.part"), filepath.Join(root, "x.txt"))
	broadcast, replaced = s.NotifyExternalRename("x.part", "x.txt")
	if !broadcast || replaced != "" {
		t.Errorf("NotifyExternalRename() = %v, %q", broadcast, replaced)
	}
	if _, ok := s.IdentifierFor("x.txt"); !ok {
		t.Error("x.txt should be tracked")
	}
}
