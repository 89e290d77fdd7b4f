package model

import (
	"time"

	"github.com/runnable/runnable-api/internal/platform"
)

// Revision records one successful commit into an image.
type Revision struct {
	ID        string    `json:"id"`
	Repo      string    `json:"repo"`
	CreatedAt time.Time `json:"created"`
}

// Image is a published runnable that others can fork.
type Image struct {
	ID              string     `json:"id" db:"id"`
	OwnerID         string     `json:"owner" db:"owner_id"`
	ParentID        *string    `json:"parent,omitempty" db:"parent_id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description" db:"description"`
	Image           string     `json:"image" db:"image"`
	Dockerfile      string     `json:"dockerfile" db:"dockerfile"`
	FileRoot        string     `json:"file_root" db:"file_root"`
	FileRootHost    string     `json:"file_root_host" db:"file_root_host"`
	Cmd             string     `json:"cmd" db:"cmd"`
	BuildCmd        string     `json:"build_cmd" db:"build_cmd"`
	StartCmd        string     `json:"start_cmd" db:"start_cmd"`
	ServiceCmds     string     `json:"service_cmds" db:"service_cmds"`
	Port            *int       `json:"port,omitempty" db:"port"`
	OutputFormat    string     `json:"output_format" db:"output_format"`
	SpecificationID *string    `json:"specification,omitempty" db:"specification_id"`
	Files           []File     `json:"files,omitempty" db:"files"`
	Tags            []Tag      `json:"tags" db:"tags"`
	Revisions       []Revision `json:"revisions" db:"revisions"`
	Votes           int        `json:"votes" db:"votes"`
	Views           int        `json:"views" db:"views"`
	Copies          int        `json:"copies" db:"copies"`
	Cuts            int        `json:"cuts" db:"cuts"`
	Runs            int        `json:"runs" db:"runs"`
	Pastes          int        `json:"pastes" db:"pastes"`
	Synced          bool       `json:"synced" db:"synced"`
	CreatedAt       time.Time  `json:"created" db:"created_at"`
}

// NewRevision returns the revision entry for a commit of containerID.
func NewRevision(containerID string, at time.Time) Revision {
	return Revision{ID: platform.NewID(), Repo: containerID, CreatedAt: at}
}

// InheritFromContainer copies the publishable fields of c into img and
// appends a revision for c. The owner is copied only when withOwner is set.
func (img *Image) InheritFromContainer(c *Container, withOwner bool, now time.Time) Revision {
	img.Name = c.Name
	img.Description = c.Description
	img.Tags = cloneTags(c.Tags)
	img.Files = cloneFiles(c.Files)
	img.Image = c.Image
	img.Dockerfile = c.Dockerfile
	img.FileRoot = c.FileRoot
	img.FileRootHost = c.FileRootHost
	img.Cmd = c.Cmd
	img.BuildCmd = c.BuildCmd
	img.StartCmd = c.StartCmd
	img.ServiceCmds = c.ServiceCmds
	img.Port = cloneIntPtr(c.Port)
	img.OutputFormat = c.OutputFormat
	img.SpecificationID = cloneStrPtr(c.SpecificationID)
	if withOwner {
		img.OwnerID = c.OwnerID
	}

	// A container forked from this image must not make the image its own parent.
	if c.ParentID != nil && *c.ParentID != c.ID && *c.ParentID != img.ID {
		img.ParentID = cloneStrPtr(c.ParentID)
	}

	rev := NewRevision(c.ID, now)
	img.Revisions = append(img.Revisions, rev)
	return rev
}

// LatestRevision returns the most recent revision, or nil when none exist.
func (img *Image) LatestRevision() *Revision {
	if len(img.Revisions) == 0 {
		return nil
	}
	return &img.Revisions[len(img.Revisions)-1]
}

// Encoded returns a shallow copy whose identifier fields are in their
// URL-safe external form.
func (img *Image) Encoded() *Image {
	out := *img
	out.ID = platform.EncodeID(img.ID)
	out.OwnerID = platform.EncodeID(img.OwnerID)
	out.ParentID = platform.EncodeIDPtr(img.ParentID)
	return &out
}

// Stat names accepted by the image counter endpoint.
const (
	StatCopies = "copies"
	StatPastes = "pastes"
	StatCuts   = "cuts"
	StatRuns   = "runs"
	StatViews  = "views"
)

// ValidStat reports whether name is an incrementable image counter.
func ValidStat(name string) bool {
	switch name {
	case StatCopies, StatPastes, StatCuts, StatRuns, StatViews:
		return true
	}
	return false
}
