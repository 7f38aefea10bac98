package types

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Record is one row of a cluster. The set of implementations is closed:
// Property, Outcome, Viewpoint, Event, Job, Collection, Lifecycle and
// Attachment. Handlers dispatch on ClusterType, never on the Go type.
type Record interface {
	// ClusterType names the cluster the record belongs to.
	ClusterType() ClusterType
	// Key returns the record's natural key segments, arity-many.
	Key() []string

	sealed()
}

// PathOf returns the complete ClusterPath of r.
func PathOf(r Record) ClusterPath {
	return ClusterPath{Type: r.ClusterType(), Keys: r.Key()}
}

// Compile-time assertions that every variant is a Record.
var (
	_ Record = (*Property)(nil)
	_ Record = (*Outcome)(nil)
	_ Record = (*Viewpoint)(nil)
	_ Record = (*Event)(nil)
	_ Record = (*Job)(nil)
	_ Record = (*Collection)(nil)
	_ Record = (*Lifecycle)(nil)
	_ Record = (*Attachment)(nil)
)

// Property is a named value. Mutable is advisory metadata for callers.
type Property struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Mutable bool   `json:"mutable"`
}

func (*Property) ClusterType() ClusterType { return PropertyCluster }
func (p *Property) Key() []string         { return []string{p.Name} }
func (*Property) sealed()                 {}

// Outcome is an opaque XML payload produced by one event. Append-only.
type Outcome struct {
	SchemaName    string `json:"schemaName"`
	SchemaVersion int    `json:"schemaVersion"`
	EventID       int    `json:"eventId"`
	Data          string `json:"data"`
}

func (*Outcome) ClusterType() ClusterType { return OutcomeCluster }
func (o *Outcome) Key() []string {
	return []string{o.SchemaName, strconv.Itoa(o.SchemaVersion), strconv.Itoa(o.EventID)}
}
func (*Outcome) sealed() {}

// LastView is the view name callers keep pointing at the newest outcome.
const LastView = "last"

// Viewpoint is a named, mutable pointer to the outcome of an event.
type Viewpoint struct {
	SchemaName    string `json:"schemaName"`
	Name          string `json:"name"`
	SchemaVersion int    `json:"schemaVersion"`
	EventID       int    `json:"eventId"`
}

func (*Viewpoint) ClusterType() ClusterType { return ViewpointCluster }
func (v *Viewpoint) Key() []string         { return []string{v.SchemaName, v.Name} }
func (*Viewpoint) sealed()                 {}

// Event is an immutable audit trail entry. SchemaName and ViewName are empty
// when the event produced no outcome.
type Event struct {
	ID                  int           `json:"id"`
	AgentID             uuid.UUID     `json:"agentId"`
	DelegateID          uuid.NullUUID `json:"delegateId"`
	AgentRole           string        `json:"agentRole"`
	SchemaName          string        `json:"schemaName,omitempty"`
	SchemaVersion       int           `json:"schemaVersion"`
	StateMachineName    string        `json:"stateMachineName"`
	StateMachineVersion int           `json:"stateMachineVersion"`
	StepName            string        `json:"stepName"`
	StepPath            string        `json:"stepPath"`
	StepType            string        `json:"stepType"`
	OriginStateID       int           `json:"originStateId"`
	TargetStateID       int           `json:"targetStateId"`
	TransitionID        int           `json:"transitionId"`
	ViewName            string        `json:"viewName,omitempty"`
	HasAttachment       bool          `json:"hasAttachment"`
	Timestamp           time.Time     `json:"timestamp"`
}

func (*Event) ClusterType() ClusterType { return HistoryCluster }
func (e *Event) Key() []string         { return []string{strconv.Itoa(e.ID)} }
func (*Event) sealed()                 {}

// Job is an actionable work descriptor computed by the workflow engine.
// Transition and ActProperties are serialized payloads.
type Job struct {
	ID              int       `json:"id"`
	ItemID          uuid.UUID `json:"itemId"`
	StepName        string    `json:"stepName"`
	StepPath        string    `json:"stepPath"`
	StepType        string    `json:"stepType"`
	Transition      string    `json:"transition"`
	OriginStateName string    `json:"originStateName"`
	TargetStateName string    `json:"targetStateName"`
	AgentRole       string    `json:"agentRole"`
	ActProperties   string    `json:"actProperties"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (*Job) ClusterType() ClusterType { return JobCluster }
func (j *Job) Key() []string         { return []string{strconv.Itoa(j.ID)} }
func (*Job) sealed()                 {}

// CurrentVersion is the version name of the working copy of a collection.
const CurrentVersion = "last"

// Collection is a serialized membership list. Version is CurrentVersion for
// the working copy and a number for snapshots.
type Collection struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Data    string `json:"data"`
}

func (*Collection) ClusterType() ClusterType { return CollectionCluster }
func (c *Collection) Key() []string         { return []string{c.Name, c.Version} }
func (*Collection) sealed()                 {}

// Lifecycle is the serialized workflow instance of an Item.
type Lifecycle struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

func (*Lifecycle) ClusterType() ClusterType { return LifecycleCluster }
func (l *Lifecycle) Key() []string         { return []string{l.Name} }
func (*Lifecycle) sealed()                 {}

// Attachment is a binary payload attached to an outcome. Append-only.
type Attachment struct {
	SchemaName    string `json:"schemaName"`
	SchemaVersion int    `json:"schemaVersion"`
	EventID       int    `json:"eventId"`
	MimeType      string `json:"mimeType"`
	Data          []byte `json:"data"`
}

func (*Attachment) ClusterType() ClusterType { return AttachmentCluster }
func (a *Attachment) Key() []string {
	return []string{a.SchemaName, strconv.Itoa(a.SchemaVersion), strconv.Itoa(a.EventID)}
}
func (*Attachment) sealed() {}

// NewRecord returns an empty record of the given type, for decoding.
func NewRecord(ct ClusterType) (Record, bool) {
	switch ct {
	case PropertyCluster:
		return &Property{}, true
	case OutcomeCluster:
		return &Outcome{}, true
	case ViewpointCluster:
		return &Viewpoint{}, true
	case HistoryCluster:
		return &Event{}, true
	case JobCluster:
		return &Job{}, true
	case CollectionCluster:
		return &Collection{}, true
	case LifecycleCluster:
		return &Lifecycle{}, true
	case AttachmentCluster:
		return &Attachment{}, true
	}
	return nil, false
}
