package replication

import (
	"fmt"
	"strings"

	"github.com/gear6io/slate/pkg/errors"
)

// Target identifies one replication destination: a named peer cluster,
// the table identifier on that peer, and the local source table. Targets
// are value types used as map keys and queue-key components, so none of
// the fields may contain the field separator.
type Target struct {
	Peer        string
	RemoteID    string
	SourceTable string
}

// Qualifier renders the target as the work-record column qualifier.
func (t Target) Qualifier() string {
	return t.Peer + fieldSeparator + t.RemoteID + fieldSeparator + t.SourceTable
}

func (t Target) String() string {
	return fmt.Sprintf("%s(table %s -> %s)", t.Peer, t.SourceTable, t.RemoteID)
}

// ParseTarget decodes a work-record qualifier back into a target.
func ParseTarget(qualifier string) (Target, error) {
	parts := strings.Split(qualifier, fieldSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Target{}, errors.New(ErrTargetMalformed, "work qualifier is not peer|remote|table", nil).
			AddContext("qualifier", qualifier)
	}
	return Target{Peer: parts[0], RemoteID: parts[1], SourceTable: parts[2]}, nil
}
