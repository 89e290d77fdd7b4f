package model

// File is one entry of a runnable's file tree.
type File struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Dir     bool   `json:"dir"`
	Ignore  bool   `json:"ignore"`
	Default bool   `json:"default"`
	Content string `json:"content,omitempty"`
}

// Tag references a channel. Name is filled in when rendered for clients.
type Tag struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel"`
	Name      string `json:"name,omitempty"`
}

// HasChannel reports whether tags already reference channelID.
func HasChannel(tags []Tag, channelID string) bool {
	for _, t := range tags {
		if t.ChannelID == channelID {
			return true
		}
	}
	return false
}

func cloneFiles(files []File) []File {
	if files == nil {
		return []File{}
	}
	out := make([]File, len(files))
	copy(out, files)
	return out
}

func cloneTags(tags []Tag) []Tag {
	if tags == nil {
		return []Tag{}
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
