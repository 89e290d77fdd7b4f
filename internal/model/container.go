package model

import (
	"time"

	"github.com/runnable/runnable-api/internal/platform"
)

// Default environment entries every live container receives.
var baseEnv = []string{
	"APACHE_RUN_USER=www-data",
	"APACHE_RUN_GROUP=www-data",
	"APACHE_LOG_DIR=/var/log/apache2",
	"PATH=/dart-sdk/bin:/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
}

// Container is a user's mutable sandbox. It becomes an Image when committed.
type Container struct {
	ID              string     `json:"id" db:"id"`
	OwnerID         string     `json:"owner" db:"owner_id"`
	ParentID        *string    `json:"parent,omitempty" db:"parent_id"`
	ChildID         *string    `json:"child,omitempty" db:"child_id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description" db:"description"`
	Status          string     `json:"status" db:"status"`
	CommitError     string     `json:"commit_error" db:"commit_error"`
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
	ServicesToken   string     `json:"servicesToken" db:"services_token"`
	WebToken        string     `json:"webToken" db:"web_token"`
	Saved           bool       `json:"saved" db:"saved"`
	Env             []string   `json:"env" db:"env"`
	Files           []File     `json:"files,omitempty" db:"files"`
	Tags            []Tag      `json:"tags" db:"tags"`
	CreatedAt       time.Time  `json:"created" db:"created_at"`
	LastWrite       *time.Time `json:"last_write,omitempty" db:"last_write"`
}

// DeriveEnv returns the environment the build service injects into the
// live container.
func (c *Container) DeriveEnv() []string {
	env := []string{
		"RUNNABLE_USER_DIR=" + c.FileRoot,
		"RUNNABLE_SERVICE_CMDS=" + c.ServiceCmds,
		"RUNNABLE_START_CMD=" + c.StartCmd,
		"RUNNABLE_BUILD_CMD=" + c.BuildCmd,
		"SERVICES_TOKEN=" + c.ServicesToken,
	}
	return append(env, baseEnv...)
}

// InheritFromImage copies the publishable fields of img into c, points the
// parent at img and issues fresh build-service tokens.
func (c *Container) InheritFromImage(img *Image) {
	c.Name = img.Name
	c.Description = img.Description
	c.Tags = cloneTags(img.Tags)
	c.Files = cloneFiles(img.Files)
	c.Image = img.Image
	c.Dockerfile = img.Dockerfile
	c.FileRoot = img.FileRoot
	c.FileRootHost = img.FileRootHost
	c.Cmd = img.Cmd
	c.BuildCmd = img.BuildCmd
	c.StartCmd = img.StartCmd
	c.ServiceCmds = img.ServiceCmds
	c.Port = cloneIntPtr(img.Port)
	c.OutputFormat = img.OutputFormat
	c.SpecificationID = cloneStrPtr(img.SpecificationID)

	parent := img.ID
	c.ParentID = &parent
	c.ServicesToken = platform.NewToken("services-")
	c.WebToken = platform.NewToken("web-")
	c.Env = c.DeriveEnv()
	if c.Status == "" {
		c.Status = StatusDraft
	}
}

// CommitBackTarget returns the image a "Committing back" republishes onto:
// the image this container last published, else the image it was forked from.
func (c *Container) CommitBackTarget() *string {
	if c.ChildID != nil && *c.ChildID != "" {
		return c.ChildID
	}
	if c.ParentID != nil && *c.ParentID != "" {
		return c.ParentID
	}
	return nil
}

// Committable reports whether the commit guard would let a transition through.
func (c *Container) Committable() bool {
	return c.Status == StatusDraft || c.CommitError != ""
}

// Encoded returns a shallow copy whose identifier fields are in their
// URL-safe external form.
func (c *Container) Encoded() *Container {
	out := *c
	out.ID = platform.EncodeID(c.ID)
	out.OwnerID = platform.EncodeID(c.OwnerID)
	out.ParentID = platform.EncodeIDPtr(c.ParentID)
	out.ChildID = platform.EncodeIDPtr(c.ChildID)
	return &out
}
