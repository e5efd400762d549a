package infostate

import (
	"fmt"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/samber/lo"
)

type rename struct {
	from, to string
}

// updatePlan lists the disk operations a client update needs, in execution order.
type updatePlan struct {
	removals []string
	renames  []rename
	creates  []string
}

// planLocked validates work against cur without touching the disk.
func (s *State) planLocked(cur, work *domain.Info) (*updatePlan, error) {
	for _, tab := range work.TabInfos {
		if err := metadata.ValidateFilename(tab.Filename); err != nil {
			return nil, err
		}
		if tab.FileID == "" {
			return nil, fmt.Errorf("%w: tab %q has no file id", domain.ErrInvalidSnapshot, tab.Filename)
		}
	}

	names := lo.Map(work.TabInfos, func(t domain.TabInfo, _ int) string { return t.Filename })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, &domain.FilenameError{Filename: dups[0], Reason: "used by more than one tab"}
	}
	ids := lo.Map(work.TabInfos, func(t domain.TabInfo, _ int) string { return t.FileID })
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return nil, fmt.Errorf("%w: duplicate file id %s", domain.ErrInvalidSnapshot, dups[0])
	}

	plan := &updatePlan{}
	freed := make(map[string]bool)
	var pending []rename

	for _, old := range cur.TabInfos {
		idx := work.FindByID(old.FileID)
		switch {
		case idx < 0:
			plan.removals = append(plan.removals, old.Filename)
			freed[old.Filename] = true
		case work.TabInfos[idx].Filename != old.Filename:
			pending = append(pending, rename{from: old.Filename, to: work.TabInfos[idx].Filename})
		}
	}

	renames, err := s.orderRenames(pending, freed)
	if err != nil {
		return nil, err
	}
	plan.renames = renames

	for _, tab := range work.TabInfos {
		if cur.FindByID(tab.FileID) < 0 && IsDefaultName(tab.Filename) {
			plan.creates = append(plan.creates, tab.Filename)
		}
	}
	return plan, nil
}

// orderRenames sorts renames so that no rename overwrites a file another
// pending rename still has to move away. Cycles are rejected.
func (s *State) orderRenames(pending []rename, freed map[string]bool) ([]rename, error) {
	sources := make(map[string]bool, len(pending))
	for _, r := range pending {
		sources[r.from] = true
	}

	for _, r := range pending {
		if sources[r.to] || freed[r.to] {
			continue
		}
		if s.dir.Exists(r.to) {
			return nil, &domain.FilenameError{Filename: r.to, Reason: "a file with that name already exists"}
		}
	}

	ordered := make([]rename, 0, len(pending))
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, r := range pending {
			if sources[r.to] {
				rest = append(rest, r)
				continue
			}
			ordered = append(ordered, r)
			delete(sources, r.from)
			progressed = true
		}
		pending = rest
		if !progressed {
			return nil, &domain.FilenameError{Filename: pending[0].to, Reason: "renames form a cycle"}
		}
	}
	return ordered, nil
}

func (s *State) executeLocked(plan *updatePlan) error {
	for _, name := range plan.removals {
		s.created.Mark(name)
		if err := s.dir.Remove(name); err != nil {
			return err
		}
	}
	for _, r := range plan.renames {
		s.created.Mark(r.from)
		s.created.Mark(r.to)
		if err := s.dir.Rename(r.from, r.to); err != nil {
			return err
		}
	}
	for _, name := range plan.creates {
		if s.dir.Exists(name) {
			continue
		}
		s.created.Mark(name)
		if err := s.dir.Write(name, domain.BlankText); err != nil {
			return err
		}
	}
	return nil
}
