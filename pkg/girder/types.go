package girder

import (
	"encoding/json"
	"fmt"
)

type User struct {
	ID        string `json:"_id"`
	Login     string `json:"login"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}

// FullName is "{firstName} {lastName}".
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// DataSetEntry refers a folder or item mounted into a Tale.
type DataSetEntry struct {
	ItemID    string `json:"itemId"`
	MountPath string `json:"mountPath"`
	ModelType string `json:"_modelType,omitempty"`
}

type Tale struct {
	ID          string           `json:"_id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Authors     json.RawMessage  `json:"authors,omitempty"`
	Category    string           `json:"category,omitempty"`
	ImageID     string           `json:"imageId"`
	FolderID    string           `json:"folderId,omitempty"`
	NarrativeID string           `json:"narrativeId,omitempty"`
	DataSet     []DataSetEntry   `json:"dataSet,omitempty"`
	Config      *ContainerConfig `json:"config,omitempty"`
	Public      bool             `json:"public"`
	Published   bool             `json:"published"`
	License     string           `json:"licenseSPDX,omitempty"`
	CreatorID   string           `json:"creatorId,omitempty"`
}

// HasDataSet is true when the tale document carries "dataSet", even if it is empty.
func (t Tale) HasDataSet() bool {
	return t.DataSet != nil
}

type InstanceStatus int

const (
	InstanceLaunching InstanceStatus = 0
	InstanceRunning   InstanceStatus = 1
	InstanceError     InstanceStatus = 2
)

// ContainerInfo describes the volume and the session of an Instance.
//
// create_volume fills the volume part, launch_container adds url and name.
type ContainerInfo struct {
	NodeID     string `json:"nodeId"`
	MountPoint string `json:"mountPoint"`
	VolumeName string `json:"volumeName"`
	SessionID  string `json:"sessionId,omitempty"`
	InstanceID string `json:"instanceId"`
	URL        string `json:"url,omitempty"`
	Name       string `json:"name,omitempty"`
}

type Instance struct {
	ID            string         `json:"_id"`
	TaleID        string         `json:"taleId"`
	Name          string         `json:"name,omitempty"`
	Status        InstanceStatus `json:"status"`
	URL           string         `json:"url,omitempty"`
	ContainerInfo *ContainerInfo `json:"containerInfo,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
}

// Quantity is a config value given either as a string ("2g") or as a number (2147483648).
//
// Numbers are kept in their decimal notation.
type Quantity string

func (q *Quantity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*q = Quantity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("quantity should be a string or a number: %s", b)
	}
	*q = Quantity(n.String())
	return nil
}

// ContainerConfig is "config" of Images and Tales.
//
// Fields are pointers so that a tale config can overlay an image config.
type ContainerConfig struct {
	Command     *string   `json:"command,omitempty"`
	Port        *int      `json:"port,omitempty"`
	User        *string   `json:"user,omitempty"`
	CPUShares   *Quantity `json:"cpuShares,omitempty"`
	MemLimit    *Quantity `json:"memLimit,omitempty"`
	TargetMount *string   `json:"targetMount,omitempty"`
	URLPath     *string   `json:"urlPath,omitempty"`
	Environment []string  `json:"environment,omitempty"`
}

// Overlay returns a copy of c with fields set in o overwritten.
func (c *ContainerConfig) Overlay(o *ContainerConfig) ContainerConfig {
	ret := ContainerConfig{}
	if c != nil {
		ret = *c
		ret.Environment = append([]string{}, c.Environment...)
	}
	if o == nil {
		return ret
	}
	if o.Command != nil {
		ret.Command = o.Command
	}
	if o.Port != nil {
		ret.Port = o.Port
	}
	if o.User != nil {
		ret.User = o.User
	}
	if o.CPUShares != nil {
		ret.CPUShares = o.CPUShares
	}
	if o.MemLimit != nil {
		ret.MemLimit = o.MemLimit
	}
	if o.TargetMount != nil {
		ret.TargetMount = o.TargetMount
	}
	if o.URLPath != nil {
		ret.URLPath = o.URLPath
	}
	if o.Environment != nil {
		ret.Environment = append([]string{}, o.Environment...)
	}
	return ret
}

type Image struct {
	ID       string           `json:"_id"`
	Name     string           `json:"name"`
	RecipeID string           `json:"recipeId,omitempty"`
	Config   *ContainerConfig `json:"config,omitempty"`
}

type Recipe struct {
	ID       string `json:"_id"`
	URL      string `json:"url"`
	CommitID string `json:"commitId"`
}

type Folder struct {
	ID         string         `json:"_id"`
	Name       string         `json:"name"`
	ParentID   string         `json:"parentId"`
	ParentType string         `json:"parentCollection"`
	ModelType  string         `json:"_modelType,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type Item struct {
	ID        string         `json:"_id"`
	Name      string         `json:"name"`
	FolderID  string         `json:"folderId"`
	Size      int64          `json:"size"`
	ModelType string         `json:"_modelType,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

type File struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	ItemID   string `json:"itemId"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	LinkURL  string `json:"linkUrl,omitempty"`
}

// Resource is a folder or an item found by name.
type Resource struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	ModelType string `json:"_modelType"`
}

type ApiKey struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Key    string `json:"key"`
	Active bool   `json:"active"`
}

// DMSession is a data-management session which the data mount reads through.
type DMSession struct {
	ID string `json:"_id"`
}

type JobStatus int

// Status codes of Girder jobs.
const (
	JobInactive JobStatus = 0
	JobQueued   JobStatus = 1
	JobRunning  JobStatus = 2
	JobSuccess  JobStatus = 3
	JobError    JobStatus = 4
	JobCanceled JobStatus = 5
)

// JobUpdate is a change of a Girder job. Zero values are not sent.
type JobUpdate struct {
	Status          JobStatus
	ProgressTotal   float64
	ProgressCurrent float64
	ProgressMessage string
	Log             string
	Notify          bool
}
