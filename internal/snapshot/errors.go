package snapshot

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned by Coordinator.Run while another run holds
// the guard.
var ErrRunInProgress = errors.New("snapshot: a run is already in progress")

// Stage names a step of one job load.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageReconcile Stage = "reconcile"
	StageDelete    Stage = "delete"
	StageCoerce    Stage = "coerce"
	StageLoad      Stage = "load"
)

// UnsafeIdentifierError rejects a destination table that is not one of the
// configured job destinations. It is raised before any DDL or DML.
type UnsafeIdentifierError struct {
	Table string
}

func (e *UnsafeIdentifierError) Error() string {
	return fmt.Sprintf("snapshot: table %q is not a configured destination", e.Table)
}

// SchemaReconcileError reports a failed schema lookup or DDL statement.
type SchemaReconcileError struct {
	Table string
	Op    string // "introspect", "create", "add column <name>"
	Err   error
}

func (e *SchemaReconcileError) Error() string {
	return fmt.Sprintf("snapshot: reconcile %s: %s: %v", e.Table, e.Op, e.Err)
}

func (e *SchemaReconcileError) Unwrap() error { return e.Err }

// LoadError wraps the failure of one stage of a job.
type LoadError struct {
	Job   string
	Stage Stage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Job, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
