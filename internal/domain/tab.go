package domain

// BlankText is the body returned for a tab that has no backing file yet.
const BlankText = "\n\n\n\n"

// TabInfo describes one tab. The order of TabInfos in an Info is the display order.
type TabInfo struct {
	// Filename is the name of the file on disk. Clients display this.
	Filename string `json:"filename"`

	// FileID is the process-scoped handle clients use to address the tab.
	// It is regenerated on every server start.
	FileID string `json:"fileId"`

	// IsProtected tabs require confirmation before deletion.
	IsProtected bool `json:"isProtected"`
}

// Info is a snapshot of every tab plus the active pointer and the change token.
type Info struct {
	ActiveFileID *string   `json:"activeFileId"`
	TabInfos     []TabInfo `json:"tabInfos"`
	ChangeToken  string    `json:"changeToken"`
}

// Clone returns a deep copy of the snapshot.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	c := &Info{
		ChangeToken: i.ChangeToken,
		TabInfos:    make([]TabInfo, len(i.TabInfos)),
	}
	copy(c.TabInfos, i.TabInfos)
	if i.ActiveFileID != nil {
		id := *i.ActiveFileID
		c.ActiveFileID = &id
	}
	return c
}

// FindByID returns the index of the tab with the given file id, or -1.
func (i *Info) FindByID(fileID string) int {
	for idx := range i.TabInfos {
		if i.TabInfos[idx].FileID == fileID {
			return idx
		}
	}
	return -1
}

// FindByFilename returns the index of the tab with the given filename, or -1.
func (i *Info) FindByFilename(filename string) int {
	for idx := range i.TabInfos {
		if i.TabInfos[idx].Filename == filename {
			return idx
		}
	}
	return -1
}

// Active returns the active file id, or "" when no tab is active.
func (i *Info) Active() string {
	if i.ActiveFileID == nil {
		return ""
	}
	return *i.ActiveFileID
}

// SetActive points the snapshot at fileID; an empty id clears the pointer.
func (i *Info) SetActive(fileID string) {
	if fileID == "" {
		i.ActiveFileID = nil
		return
	}
	i.ActiveFileID = &fileID
}

// TabContent is the text body of one tab.
type TabContent struct {
	FileID string `json:"fileId"`
	Text   string `json:"text"`
}
