package replication

import (
	"fmt"
	"math"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Status tracks how much of one segment file has been replicated for one
// source table. Begin is the low-water mark (everything before it is
// replicated); End is the high-water mark of data needing replication.
// When InfiniteEnd is set the file is treated as unbounded and End is
// ignored. Closed means the file will receive no further appends;
// ClosedTime is set once, when the close is first processed (0 = not
// recorded).
type Status struct {
	Begin       int64 `msgpack:"begin"`
	End         int64 `msgpack:"end"`
	InfiniteEnd bool  `msgpack:"infinite_end"`
	Closed      bool  `msgpack:"closed"`
	ClosedTime  int64 `msgpack:"closed_time"`
}

// NewFileStatus is the state of a freshly opened segment: nothing
// replicated, length unknown.
func NewFileStatus() Status {
	return Status{InfiniteEnd: true}
}

// IngestedUntil reports data present up to end, none replicated.
func IngestedUntil(end int64) Status {
	return Status{End: end}
}

// Replicated reports everything before begin replicated on an
// unbounded file.
func Replicated(begin int64) Status {
	return Status{Begin: begin, InfiniteEnd: true}
}

// ReplicatedAndIngested reports both marks on a bounded file.
func ReplicatedAndIngested(begin, end int64) Status {
	return Status{Begin: begin, End: end}
}

// FileClosed marks an unbounded file closed without a recorded close time.
func FileClosed() Status {
	return Status{InfiniteEnd: true, Closed: true}
}

// FileClosedAt marks an unbounded file closed at the given wall-clock
// milliseconds.
func FileClosedAt(ts int64) Status {
	return Status{InfiniteEnd: true, Closed: true, ClosedTime: ts}
}

// RequiresWork reports whether any data still needs replication.
func (s Status) RequiresWork() bool {
	if s.InfiniteEnd {
		return s.Begin != math.MaxInt64
	}
	return s.Begin < s.End
}

// FullyReplicated reports whether every needed byte has been replicated.
func (s Status) FullyReplicated() bool {
	if s.InfiniteEnd {
		return s.Begin == math.MaxInt64
	}
	return s.Begin >= s.End
}

// SafeForRemoval reports whether the file can be garbage collected: closed
// and fully replicated, so no more data will ever need it.
func (s Status) SafeForRemoval() bool {
	return s.Closed && s.FullyReplicated()
}

func (s Status) String() string {
	return fmt.Sprintf("begin=%d end=%d infinite=%t closed=%t closedTime=%d",
		s.Begin, s.End, s.InfiniteEnd, s.Closed, s.ClosedTime)
}

// Merge combines two status observations of the same file and table.
// Water marks never move backwards, closed and infinite-end are sticky,
// and the close time keeps the earliest non-zero value. The operation is
// commutative, associative, and idempotent so the store may apply it in
// any grouping and replay it after a crash.
func Merge(a, b Status) Status {
	merged := Status{
		Begin:       a.Begin,
		End:         a.End,
		InfiniteEnd: a.InfiniteEnd || b.InfiniteEnd,
		Closed:      a.Closed || b.Closed,
	}
	if b.Begin > merged.Begin {
		merged.Begin = b.Begin
	}
	if b.End > merged.End {
		merged.End = b.End
	}
	switch {
	case a.ClosedTime == 0:
		merged.ClosedTime = b.ClosedTime
	case b.ClosedTime == 0:
		merged.ClosedTime = a.ClosedTime
	case b.ClosedTime < a.ClosedTime:
		merged.ClosedTime = b.ClosedTime
	default:
		merged.ClosedTime = a.ClosedTime
	}
	return merged
}

// MarshalStatus serializes a status for storage.
func MarshalStatus(s Status) ([]byte, error) {
	data, err := msgpack.Marshal(&s)
	if err != nil {
		return nil, errors.New(ErrStatusEncode, "failed to encode status", err)
	}
	return data, nil
}

// UnmarshalStatus decodes a stored status value.
func UnmarshalStatus(data []byte) (Status, error) {
	var s Status
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return Status{}, errors.New(ErrStatusDecode, "failed to decode status", err)
	}
	return s, nil
}
